package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
)

// buildConnectionString builds a PostgreSQL URL. User-provided fields are
// URL-escaped so passwords may contain @, /, # or ?.
// Inside Docker, localhost resolves to host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}
