package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-introspect/pkg/crypto"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSealCommand(t *testing.T) {
	t.Setenv("EKAYA_CREDENTIAL_KEY", "cli-test-key")
	sealer, err := crypto.NewCredentialSealer("cli-test-key")
	require.NoError(t, err)

	t.Run("argument", func(t *testing.T) {
		out, err := run(t, "", "seal", "s3cret")
		require.NoError(t, err)
		sealed := strings.TrimSpace(out)
		assert.True(t, crypto.IsSealed(sealed))
		opened, err := sealer.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", opened)
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, "from-stdin\n", "seal")
		require.NoError(t, err)
		opened, err := sealer.Open(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "from-stdin", opened)
	})
}

func TestSealCommand_RequiresKey(t *testing.T) {
	t.Setenv("EKAYA_CREDENTIAL_KEY", "")
	_, err := run(t, "", "seal", "s3cret")
	require.ErrorIs(t, err, crypto.ErrInvalidKey)
}

func TestSourcesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: "test"
log_level: "error"
default_datasource: "warehouse"
datasources:
  - name: "warehouse"
    type: "postgres"
    credentials:
      host: "localhost"
  - name: "lake"
    type: "bq"
    credentials:
      project_id: "acme"
`), 0o644))

	out, err := run(t, "", "sources", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "DATASOURCE")
	assert.Contains(t, out, "warehouse (default)")
	assert.Contains(t, out, "lake")
	assert.Contains(t, out, "bigquery")
	assert.Less(t, strings.Index(out, "lake"), strings.Index(out, "warehouse (default)"))
}

func TestQueryCommand_RejectsMultipleStatements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: "error"
datasources:
  - name: "warehouse"
    type: "postgres"
    credentials:
      host: "localhost"
`), 0o644))

	_, err := run(t, "", "query", "--config", path, "SELECT 1; DROP TABLE orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple SQL statements")
}
