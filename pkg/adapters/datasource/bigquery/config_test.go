package bigquery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap_ServiceAccountVariants(t *testing.T) {
	tests := []struct {
		name     string
		key      any
		wantJSON bool
		wantFile string
	}{
		{"nested object", map[string]any{"type": "service_account", "project_id": "p"}, true, ""},
		{"json string", `{"type": "service_account"}`, true, ""},
		{"file path", "/secrets/sa.json", false, "/secrets/sa.json"},
		{"absent", nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := map[string]any{"project_id": "acme-data"}
			if tt.key != nil {
				creds["service_account_key"] = tt.key
			}
			cfg, err := FromMap(creds)
			require.NoError(t, err)

			assert.Equal(t, "acme-data", cfg.ProjectID)
			assert.Equal(t, DefaultLocation, cfg.Location)
			assert.Equal(t, tt.wantFile, cfg.CredentialsFile)
			if tt.wantJSON {
				require.NotNil(t, cfg.CredentialsJSON)
				assert.True(t, json.Valid(cfg.CredentialsJSON))
			} else {
				assert.Nil(t, cfg.CredentialsJSON)
			}
		})
	}
}

func TestFromMap_KeyFilePathAndLocation(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"project_id":    "acme-data",
		"key_file_path": "/secrets/sa.json",
		"location":      "EU",
	})
	require.NoError(t, err)
	assert.Equal(t, "/secrets/sa.json", cfg.CredentialsFile)
	assert.Equal(t, "EU", cfg.Location)
}

func TestFromMap_Errors(t *testing.T) {
	_, err := FromMap(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id is required")

	_, err = FromMap(map[string]any{"project_id": "p", "service_account_key": `{"broken"`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")

	_, err = FromMap(map[string]any{"project_id": "p", "service_account_key": 42})
	require.Error(t, err)
}
