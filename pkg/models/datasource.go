package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DataSourceType identifies a warehouse engine.
type DataSourceType string

const (
	DataSourceSnowflake DataSourceType = "snowflake"
	DataSourcePostgres  DataSourceType = "postgres"
	DataSourceMySQL     DataSourceType = "mysql"
	DataSourceBigQuery  DataSourceType = "bigquery"
	DataSourceSQLServer DataSourceType = "sqlserver"
	DataSourceRedshift  DataSourceType = "redshift"
)

// AllDataSourceTypes lists every supported engine.
var AllDataSourceTypes = []DataSourceType{
	DataSourceSnowflake,
	DataSourcePostgres,
	DataSourceMySQL,
	DataSourceBigQuery,
	DataSourceSQLServer,
	DataSourceRedshift,
}

// ParseDataSourceType normalizes a type name, accepting common aliases.
func ParseDataSourceType(s string) (DataSourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "snowflake":
		return DataSourceSnowflake, nil
	case "postgres", "postgresql", "pg":
		return DataSourcePostgres, nil
	case "mysql", "mariadb":
		return DataSourceMySQL, nil
	case "bigquery", "bq":
		return DataSourceBigQuery, nil
	case "sqlserver", "mssql":
		return DataSourceSQLServer, nil
	case "redshift":
		return DataSourceRedshift, nil
	}
	return "", fmt.Errorf("unknown data source type %q", s)
}

func (t DataSourceType) String() string {
	return string(t)
}

// Datasource is a named connection to one warehouse. Credentials vary by type
// and are parsed by the engine's adapter.
type Datasource struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Type        DataSourceType `json:"type" yaml:"type"`
	Credentials map[string]any `json:"-" yaml:"credentials"`
}
