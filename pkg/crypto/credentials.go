// Package crypto seals data source credentials so they can be committed to
// configuration files.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks a credential value produced by Seal.
const SealedPrefix = "enc:"

var (
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid credential key: must not be empty")
	// ErrDecryptionFailed is returned for malformed values or the wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
	// ErrNoKey is returned when a sealed value is found but no key is configured.
	ErrNoKey = errors.New("sealed credential found but no credential key is configured")
)

// CredentialSealer encrypts credential values with AES-256-GCM.
type CredentialSealer struct {
	gcm cipher.AEAD
}

// NewCredentialSealer derives a sealer from key. A base64 string that decodes
// to exactly 32 bytes (openssl rand -base64 32) is used as-is; anything else
// is treated as a passphrase and hashed with SHA-256.
func NewCredentialSealer(key string) (*CredentialSealer, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 32 {
		sum := sha256.Sum256([]byte(key))
		raw = sum[:]
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CredentialSealer{gcm: gcm}, nil
}

// IsSealed reports whether v carries SealedPrefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, SealedPrefix)
}

// Seal returns "enc:" + base64(nonce || ciphertext || tag).
func (s *CredentialSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without SealedPrefix are returned unchanged.
func (s *CredentialSealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}
	n := s.gcm.NonceSize()
	if len(data) < n+s.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := s.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// OpenCredentials returns a copy of creds with every sealed string opened,
// recursing into nested maps. A nil sealer is allowed as long as nothing is
// sealed.
func OpenCredentials(s *CredentialSealer, creds map[string]any) (map[string]any, error) {
	if creds == nil {
		return nil, nil
	}
	out := make(map[string]any, len(creds))
	for k, v := range creds {
		switch val := v.(type) {
		case string:
			if !IsSealed(val) {
				out[k] = val
				continue
			}
			if s == nil {
				return nil, fmt.Errorf("%s: %w", k, ErrNoKey)
			}
			opened, err := s.Open(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = opened
		case map[string]any:
			nested, err := OpenCredentials(s, val)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", k, err)
			}
			out[k] = nested
		default:
			out[k] = v
		}
	}
	return out, nil
}
