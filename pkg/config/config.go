package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-introspect/pkg/crypto"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-introspect.
// Configuration comes from a YAML file with environment variable overrides.
// Credentials are kept in the YAML file but may reference environment
// variables as ${NAME}, which are expanded at load time. Values sealed with
// "ekaya-introspect seal" (prefixed enc:) are opened with CredentialKey.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time

	// CredentialKey opens sealed credential values. Never read from YAML.
	CredentialKey string `yaml:"-" env:"EKAYA_CREDENTIAL_KEY" env-default:""`

	// DefaultDatasource is used when a command does not name a data source.
	DefaultDatasource string `yaml:"default_datasource" env:"DEFAULT_DATASOURCE" env-default:""`

	// Datasources are the configured warehouses.
	Datasources []DatasourceEntry `yaml:"datasources"`

	Introspection IntrospectionConfig `yaml:"introspection"`
	Datasource    DatasourceConfig    `yaml:"datasource"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
}

// DatasourceEntry is one configured warehouse. Credentials are engine specific
// and parsed by the adapter's FromMap.
type DatasourceEntry struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Credentials map[string]any `yaml:"credentials"`
}

// IntrospectionConfig tunes the introspection engine.
type IntrospectionConfig struct {
	// CacheTTL is how long unfiltered catalog results are reused.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"INTROSPECTION_CACHE_TTL" env-default:"5m"`
	// StatisticsBatchSize caps concurrent column statistics queries.
	StatisticsBatchSize int `yaml:"statistics_batch_size" env:"INTROSPECTION_STATISTICS_BATCH_SIZE" env-default:"20"`
	// EnrichmentConcurrency caps concurrent per-database and per-dataset catalog lookups.
	EnrichmentConcurrency int `yaml:"enrichment_concurrency" env:"INTROSPECTION_ENRICHMENT_CONCURRENCY" env-default:"8"`
	// SkipStatistics disables column statistics during full introspection.
	SkipStatistics bool `yaml:"skip_statistics" env:"INTROSPECTION_SKIP_STATISTICS" env-default:"false"`
	// QueryTimeout bounds each catalog and statistics query. Zero leaves it to the engine.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"INTROSPECTION_QUERY_TIMEOUT" env-default:"0s"`
}

// DatasourceConfig holds adapter connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle adapters are kept open.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// HealthCheckTimeout bounds the connection test run before reusing an adapter.
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" env:"DATASOURCE_HEALTH_CHECK_TIMEOUT" env-default:"5s"`
}

// TelemetryConfig enables OpenTelemetry export over OTLP gRPC.
// The exporter endpoint is read from OTEL_EXPORTER_OTLP_ENDPOINT by the SDK.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"ekaya-introspect"`
}

// SnapshotConfig controls where introspection results are written.
type SnapshotConfig struct {
	// Destination is a local directory or an s3://bucket/prefix URL. Empty writes to stdout.
	Destination    string `yaml:"destination" env:"SNAPSHOT_DESTINATION" env-default:""`
	Format         string `yaml:"format" env:"SNAPSHOT_FORMAT" env-default:"json"`
	S3Region       string `yaml:"s3_region" env:"SNAPSHOT_S3_REGION" env-default:"us-east-1"`
	S3Endpoint     string `yaml:"s3_endpoint" env:"SNAPSHOT_S3_ENDPOINT" env-default:""`
	S3PathStyle    bool   `yaml:"s3_path_style" env:"SNAPSHOT_S3_PATH_STYLE" env-default:"false"`
	S3StorageClass string `yaml:"s3_storage_class" env:"SNAPSHOT_S3_STORAGE_CLASS" env-default:""`
}

// Load reads configuration from path (config.yaml when empty) with
// environment overrides. A missing file is not an error; configuration then
// comes from the environment alone.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.openCredentials(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks data source entries and numeric limits.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Datasources))
	for i, ds := range c.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("datasources[%d]: name is required", i)
		}
		if seen[ds.Name] {
			return fmt.Errorf("datasources[%d]: duplicate name %q", i, ds.Name)
		}
		seen[ds.Name] = true
		if _, err := models.ParseDataSourceType(ds.Type); err != nil {
			return fmt.Errorf("datasources[%d] (%s): %w", i, ds.Name, err)
		}
	}

	if c.DefaultDatasource != "" && !seen[c.DefaultDatasource] {
		return fmt.Errorf("default_datasource %q is not configured", c.DefaultDatasource)
	}
	if c.Introspection.StatisticsBatchSize <= 0 {
		return fmt.Errorf("introspection.statistics_batch_size must be positive, got %d", c.Introspection.StatisticsBatchSize)
	}
	if c.Introspection.CacheTTL < 0 {
		return fmt.Errorf("introspection.cache_ttl must not be negative")
	}
	switch strings.ToLower(c.Snapshot.Format) {
	case "", "json", "yaml", "yml":
	default:
		return fmt.Errorf("snapshot.format must be json or yaml, got %q", c.Snapshot.Format)
	}
	return nil
}

// FindDatasource returns the named entry.
func (c *Config) FindDatasource(name string) (DatasourceEntry, bool) {
	for _, ds := range c.Datasources {
		if ds.Name == name {
			return ds, true
		}
	}
	return DatasourceEntry{}, false
}

// openCredentials expands environment references and opens sealed values in
// every data source's credentials.
func (c *Config) openCredentials() error {
	var sealer *crypto.CredentialSealer
	if c.CredentialKey != "" {
		var err error
		if sealer, err = crypto.NewCredentialSealer(c.CredentialKey); err != nil {
			return err
		}
	}
	for i := range c.Datasources {
		creds, err := crypto.OpenCredentials(sealer, expandCredentials(c.Datasources[i].Credentials))
		if err != nil {
			return fmt.Errorf("datasources[%d] (%s) credentials: %w", i, c.Datasources[i].Name, err)
		}
		c.Datasources[i].Credentials = creds
	}
	return nil
}

// expandCredentials replaces ${NAME} references in string credential values,
// recursing into nested maps (BigQuery service-account JSON is often nested).
func expandCredentials(creds map[string]any) map[string]any {
	if creds == nil {
		return nil
	}
	out := make(map[string]any, len(creds))
	for k, v := range creds {
		switch val := v.(type) {
		case string:
			out[k] = os.ExpandEnv(val)
		case map[string]any:
			out[k] = expandCredentials(val)
		default:
			out[k] = v
		}
	}
	return out
}
