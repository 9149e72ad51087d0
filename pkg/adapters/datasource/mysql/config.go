package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string // optional; introspection spans every visible schema
	TLS      string // "", "true", "false", "skip-verify", "preferred"
	Timeout  time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a credentials map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort(),
		Timeout: 30 * time.Second,
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else if user, ok := config["username"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}
	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	}
	if tls, ok := config["tls"].(string); ok {
		cfg.TLS = tls
	} else if tls, ok := config["tls"].(bool); ok {
		cfg.TLS = fmt.Sprintf("%t", tls)
	}
	if timeout, ok := config["connection_timeout"].(float64); ok {
		cfg.Timeout = time.Duration(timeout) * time.Second
	} else if timeout, ok := config["connection_timeout"].(int); ok {
		cfg.Timeout = time.Duration(timeout) * time.Second
	}

	return cfg, nil
}

// driverConfig maps cfg onto the driver's own config type.
func driverConfig(cfg *Config) *driver.Config {
	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port)
	dc.DBName = cfg.Database
	dc.Timeout = cfg.Timeout
	dc.ParseTime = true
	dc.TLSConfig = cfg.TLS
	// GROUP_CONCAT sample lists are cut at 1024 bytes by default
	dc.Params = map[string]string{"group_concat_max_len": "65536"}
	return dc
}
