package snowflake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	sf "github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"account_id":       "xy12345.us-east-1",
		"username":         "ANALYST",
		"password":         "pw",
		"warehouse_id":     "COMPUTE_WH",
		"default_database": "ANALYTICS",
		"role":             "READER",
	})
	require.NoError(t, err)

	assert.Equal(t, "xy12345.us-east-1", cfg.Account)
	assert.Equal(t, "ANALYST", cfg.User)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
	assert.Equal(t, "ANALYTICS", cfg.Database)
	assert.Equal(t, "READER", cfg.Role)
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{"missing account", map[string]any{"user": "u", "password": "p"}, "account is required"},
		{"missing user", map[string]any{"account": "a", "password": "p"}, "user is required"},
		{"missing secret", map[string]any{"account": "a", "user": "u"}, "one of password, private_key or token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDriverConfig_Authenticators(t *testing.T) {
	dc, err := driverConfig(&Config{Account: "a", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, sf.AuthTypeSnowflake, dc.Authenticator)
	assert.Equal(t, "p", dc.Password)

	dc, err = driverConfig(&Config{Account: "a", User: "u", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, sf.AuthTypeOAuth, dc.Authenticator)
	assert.Equal(t, "tok", dc.Token)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	// escaped newlines as they appear in single-line YAML values
	escaped := strings.ReplaceAll(pemText, "\n", `\n`)
	dc, err = driverConfig(&Config{Account: "a", User: "u", PrivateKey: escaped})
	require.NoError(t, err)
	assert.Equal(t, sf.AuthTypeJwt, dc.Authenticator)
	require.NotNil(t, dc.PrivateKey)
	assert.True(t, key.Equal(dc.PrivateKey))
}

func TestDriverConfig_BadPrivateKey(t *testing.T) {
	_, err := driverConfig(&Config{Account: "a", User: "u", PrivateKey: "not a key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not PEM encoded")
}
