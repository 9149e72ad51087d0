package bigquery

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultLocation is used when credentials do not name one.
const DefaultLocation = "US"

// Config contains BigQuery connection options.
type Config struct {
	ProjectID string
	Location  string

	// CredentialsJSON holds an inline service-account key.
	CredentialsJSON []byte
	// CredentialsFile is a path to a service-account key file.
	CredentialsFile string
}

// FromMap creates a Config from a credentials map. The service-account key may
// be a nested map, a JSON string or a file path; without one, application
// default credentials are used.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Location: DefaultLocation}

	if project, ok := config["project_id"].(string); ok && project != "" {
		cfg.ProjectID = project
	} else {
		return nil, fmt.Errorf("project_id is required")
	}

	if location, ok := config["location"].(string); ok && location != "" {
		cfg.Location = location
	}

	switch key := config["service_account_key"].(type) {
	case map[string]any:
		b, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("encode service_account_key: %w", err)
		}
		cfg.CredentialsJSON = b
	case string:
		trimmed := strings.TrimSpace(key)
		if strings.HasPrefix(trimmed, "{") {
			if !json.Valid([]byte(trimmed)) {
				return nil, fmt.Errorf("service_account_key is not valid JSON")
			}
			cfg.CredentialsJSON = []byte(trimmed)
		} else if trimmed != "" {
			cfg.CredentialsFile = trimmed
		}
	case nil:
	default:
		return nil, fmt.Errorf("service_account_key must be an object or a string")
	}

	if cfg.CredentialsJSON == nil && cfg.CredentialsFile == "" {
		if path, ok := config["key_file_path"].(string); ok {
			cfg.CredentialsFile = path
		}
	}

	return cfg, nil
}
