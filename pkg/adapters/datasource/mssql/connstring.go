package mssql

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
)

// Driver names registered by go-mssqldb.
const (
	driverSQLServer = "sqlserver"
	driverAzureSQL  = "azuresql"
)

// buildConnectionString returns the driver name and DSN for cfg.
func buildConnectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)
	driver := driverSQLServer
	userInfo := ""

	switch cfg.AuthMethod {
	case AuthSQL:
		userInfo = url.QueryEscape(cfg.Username) + ":" + url.QueryEscape(cfg.Password) + "@"
	case AuthServicePrincipal:
		driver = driverAzureSQL
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
	case AuthAccessToken:
		// the sqlserver driver takes the token as the password
		query.Add("fedauth", "ActiveDirectoryAccessToken")
		query.Add("password", cfg.AccessToken)
	}

	return driver, fmt.Sprintf("sqlserver://%s%s:%d?%s", userInfo, host, cfg.Port, query.Encode())
}
