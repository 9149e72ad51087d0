package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
)

// Config contains Snowflake connection options. Exactly one of Password,
// PrivateKey or Token authenticates the user.
type Config struct {
	Account    string
	User       string
	Password   string
	PrivateKey string // PEM encoded PKCS#8
	Token      string // OAuth access token
	Warehouse  string
	Database   string
	Schema     string
	Role       string
	Timeout    time.Duration
}

// FromMap creates a Config from a credentials map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Timeout: 60 * time.Second}

	if account, ok := config["account"].(string); ok && account != "" {
		cfg.Account = account
	} else if account, ok := config["account_id"].(string); ok && account != "" {
		cfg.Account = account
	} else {
		return nil, fmt.Errorf("account is required")
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else if user, ok := config["username"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	cfg.Password, _ = config["password"].(string)
	cfg.PrivateKey, _ = config["private_key"].(string)
	cfg.Token, _ = config["token"].(string)
	if cfg.Password == "" && cfg.PrivateKey == "" && cfg.Token == "" {
		return nil, fmt.Errorf("one of password, private_key or token is required")
	}

	if wh, ok := config["warehouse"].(string); ok && wh != "" {
		cfg.Warehouse = wh
	} else if wh, ok := config["warehouse_id"].(string); ok && wh != "" {
		cfg.Warehouse = wh
	}
	if db, ok := config["database"].(string); ok && db != "" {
		cfg.Database = db
	} else if db, ok := config["default_database"].(string); ok && db != "" {
		cfg.Database = db
	}
	if schema, ok := config["schema"].(string); ok {
		cfg.Schema = schema
	} else if schema, ok := config["default_schema"].(string); ok {
		cfg.Schema = schema
	}
	cfg.Role, _ = config["role"].(string)

	if timeout, ok := config["connection_timeout"].(float64); ok {
		cfg.Timeout = time.Duration(timeout) * time.Second
	} else if timeout, ok := config["connection_timeout"].(int); ok {
		cfg.Timeout = time.Duration(timeout) * time.Second
	}

	return cfg, nil
}

// driverConfig maps cfg onto gosnowflake's config, choosing the authenticator.
func driverConfig(cfg *Config) (*sf.Config, error) {
	dc := &sf.Config{
		Account:        cfg.Account,
		User:           cfg.User,
		Warehouse:      cfg.Warehouse,
		Database:       cfg.Database,
		Schema:         cfg.Schema,
		Role:           cfg.Role,
		LoginTimeout:   cfg.Timeout,
		Application:    "ekaya-introspect",
		ClientTimeout:  cfg.Timeout * 5,
		RequestTimeout: cfg.Timeout,
	}

	switch {
	case cfg.PrivateKey != "":
		key, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		dc.Authenticator = sf.AuthTypeJwt
		dc.PrivateKey = key
	case cfg.Token != "":
		dc.Authenticator = sf.AuthTypeOAuth
		dc.Token = cfg.Token
	default:
		dc.Authenticator = sf.AuthTypeSnowflake
		dc.Password = cfg.Password
	}
	return dc, nil
}

func parsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	// keys pasted into YAML often carry literal \n sequences
	pemText = strings.ReplaceAll(pemText, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("private_key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private_key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private_key must be an RSA key")
	}
	return key, nil
}
