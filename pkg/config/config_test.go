package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-introspect/pkg/crypto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
env: "test"
default_datasource: "warehouse"
datasources:
  - name: "warehouse"
    type: "postgres"
    credentials:
      host: "db.example.com"
      port: 5432
      user: "reader"
      password: "${TEST_WAREHOUSE_PASSWORD}"
      database: "analytics"
  - name: "lake"
    type: "bigquery"
    credentials:
      project_id: "acme-data"
      service_account:
        private_key: "${TEST_BQ_KEY}"
`)
	t.Setenv("TEST_WAREHOUSE_PASSWORD", "s3cret")
	t.Setenv("TEST_BQ_KEY", "pem")

	cfg, err := Load(path, "v1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Introspection.CacheTTL)
	assert.Equal(t, 20, cfg.Introspection.StatisticsBatchSize)
	assert.Equal(t, 5, cfg.Datasource.ConnectionTTLMinutes)
	assert.Equal(t, "json", cfg.Snapshot.Format)

	require.Len(t, cfg.Datasources, 2)
	ds, ok := cfg.FindDatasource("warehouse")
	require.True(t, ok)
	assert.Equal(t, "s3cret", ds.Credentials["password"])
	assert.Equal(t, 5432, ds.Credentials["port"])

	lake, ok := cfg.FindDatasource("lake")
	require.True(t, ok)
	sa, ok := lake.Credentials["service_account"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pem", sa["private_key"])
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
env: "test"
introspection:
  statistics_batch_size: 10
`)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("INTROSPECTION_STATISTICS_BATCH_SIZE", "5")
	t.Setenv("INTROSPECTION_CACHE_TTL", "30s")

	cfg, err := Load(path, "dev")
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 5, cfg.Introspection.StatisticsBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Introspection.CacheTTL)
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "dev")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.Datasources)
}

func TestLoad_InvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown type",
			yaml: `
datasources:
  - name: "x"
    type: "oracle"
`,
			wantErr: "unknown data source type",
		},
		{
			name: "duplicate name",
			yaml: `
datasources:
  - name: "x"
    type: "mysql"
  - name: "x"
    type: "postgres"
`,
			wantErr: "duplicate name",
		},
		{
			name: "missing name",
			yaml: `
datasources:
  - type: "mysql"
`,
			wantErr: "name is required",
		},
		{
			name: "unknown default",
			yaml: `
default_datasource: "nope"
datasources:
  - name: "x"
    type: "mysql"
`,
			wantErr: "default_datasource",
		},
		{
			name: "bad snapshot format",
			yaml: `
snapshot:
  format: "xml"
`,
			wantErr: "snapshot.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml), "dev")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandCredentials_NonStringValuesKept(t *testing.T) {
	t.Setenv("TEST_HOST", "h")
	got := expandCredentials(map[string]any{
		"host":    "${TEST_HOST}",
		"port":    3306,
		"encrypt": true,
	})
	assert.Equal(t, map[string]any{"host": "h", "port": 3306, "encrypt": true}, got)
	assert.Nil(t, expandCredentials(nil))
}

func TestLoad_OpensSealedCredentials(t *testing.T) {
	sealer, err := crypto.NewCredentialSealer("test-passphrase")
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	path := writeConfig(t, `
datasources:
  - name: "warehouse"
    type: "postgres"
    credentials:
      host: "db.example.com"
      password: "`+sealed+`"
`)

	t.Run("with key", func(t *testing.T) {
		t.Setenv("EKAYA_CREDENTIAL_KEY", "test-passphrase")
		cfg, err := Load(path, "dev")
		require.NoError(t, err)
		ds, ok := cfg.FindDatasource("warehouse")
		require.True(t, ok)
		assert.Equal(t, "s3cret", ds.Credentials["password"])
	})

	t.Run("without key", func(t *testing.T) {
		t.Setenv("EKAYA_CREDENTIAL_KEY", "")
		_, err := Load(path, "dev")
		require.ErrorIs(t, err, crypto.ErrNoKey)
		assert.Contains(t, err.Error(), "warehouse")
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Setenv("EKAYA_CREDENTIAL_KEY", "other")
		_, err := Load(path, "dev")
		require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	})
}
