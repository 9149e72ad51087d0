package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openssl rand -base64 32 style key
const testKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

func TestNewCredentialSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"32-byte base64 key", testKey, nil},
		{"passphrase", "my-simple-passphrase", nil},
		{"short base64 key", base64.StdEncoding.EncodeToString([]byte("sixteen-byte-key")), nil},
		{"empty", "", ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCredentialSealer(tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewCredentialSealer(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"s3cret", "", "p@ss:w0rd/with;chars", strings.Repeat("k", 4096)} {
		sealed, err := s.Seal(plaintext)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	s, err := NewCredentialSealer(testKey)
	require.NoError(t, err)
	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPassphraseIsStable(t *testing.T) {
	a, err := NewCredentialSealer("quickstart-demo-key")
	require.NoError(t, err)
	b, err := NewCredentialSealer("quickstart-demo-key")
	require.NoError(t, err)

	sealed, err := a.Seal("hello")
	require.NoError(t, err)
	opened, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", opened)
}

func TestOpen_Failures(t *testing.T) {
	s, err := NewCredentialSealer(testKey)
	require.NoError(t, err)
	other, err := NewCredentialSealer("another-key")
	require.NoError(t, err)

	sealed, err := other.Seal("hello")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"wrong key", sealed},
		{"not base64", SealedPrefix + "!!!"},
		{"too short", SealedPrefix + base64.StdEncoding.EncodeToString([]byte("abc"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.value)
			require.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}

	plain, err := s.Open("not sealed")
	require.NoError(t, err)
	assert.Equal(t, "not sealed", plain)
}

func TestOpenCredentials(t *testing.T) {
	s, err := NewCredentialSealer(testKey)
	require.NoError(t, err)
	password, err := s.Seal("s3cret")
	require.NoError(t, err)
	privateKey, err := s.Seal("pem")
	require.NoError(t, err)

	creds := map[string]any{
		"host":     "db.example.com",
		"port":     5432,
		"password": password,
		"service_account": map[string]any{
			"private_key": privateKey,
			"client_id":   "123",
		},
	}

	out, err := OpenCredentials(s, creds)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", out["password"])
	assert.Equal(t, 5432, out["port"])
	assert.Equal(t, "pem", out["service_account"].(map[string]any)["private_key"])
	assert.Equal(t, password, creds["password"], "input is not modified")

	_, err = OpenCredentials(nil, creds)
	require.ErrorIs(t, err, ErrNoKey)

	out, err = OpenCredentials(nil, map[string]any{"host": "h"})
	require.NoError(t, err)
	assert.Equal(t, "h", out["host"])

	out, err = OpenCredentials(s, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
