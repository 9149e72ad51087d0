// Package typeclass sorts engine-native column types into the categories that
// decide whether MIN/MAX is computed for a column.
package typeclass

import (
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Category is the statistical class of a column type.
type Category int

const (
	Other Category = iota
	Numeric
	Date
)

func (c Category) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case Date:
		return "date"
	default:
		return "other"
	}
}

// Type names are matched as case-insensitive substrings of the catalog type.
var numericTypes = map[models.DataSourceType][]string{
	models.DataSourcePostgres: {
		"integer", "bigint", "smallint", "decimal", "numeric", "real",
		"double precision", "serial", "bigserial", "smallserial", "money",
	},
	models.DataSourceSnowflake: {
		"number", "decimal", "numeric", "int", "integer", "bigint", "smallint",
		"tinyint", "byteint", "float", "float4", "float8", "double",
		"double precision", "real",
	},
	models.DataSourceMySQL: {
		"tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"decimal", "dec", "numeric", "fixed", "float", "double", "real", "bit",
	},
	models.DataSourceSQLServer: {
		"bit", "tinyint", "smallint", "int", "bigint", "decimal", "numeric",
		"smallmoney", "money", "float", "real",
	},
	models.DataSourceBigQuery: {
		"int64", "integer", "float64", "float", "numeric", "decimal",
		"bignumeric", "bigdecimal",
	},
}

var dateTypes = map[models.DataSourceType][]string{
	models.DataSourcePostgres:  {"date", "timestamp", "timestamptz", "time", "timetz"},
	models.DataSourceSnowflake: {"date", "timestamp", "timestamp_ltz", "timestamp_tz", "time"},
	models.DataSourceMySQL:     {"date", "datetime", "timestamp", "time", "year"},
	models.DataSourceSQLServer: {"date", "time", "datetime", "datetime2", "smalldatetime", "datetimeoffset"},
	models.DataSourceBigQuery:  {"date", "datetime", "timestamp", "time"},
}

// Redshift speaks the Postgres type vocabulary.
func family(dsType models.DataSourceType) models.DataSourceType {
	if dsType == models.DataSourceRedshift {
		return models.DataSourcePostgres
	}
	return dsType
}

func matchesAny(dataType string, candidates []string) bool {
	dt := strings.ToLower(dataType)
	for _, c := range candidates {
		if strings.Contains(dt, c) {
			return true
		}
	}
	return false
}

// IsNumeric reports whether dataType is a numeric type on the given engine.
// Unknown engines and types are never numeric.
func IsNumeric(dsType models.DataSourceType, dataType string) bool {
	return matchesAny(dataType, numericTypes[family(dsType)])
}

// IsDate reports whether dataType is a date or time type on the given engine.
func IsDate(dsType models.DataSourceType, dataType string) bool {
	return matchesAny(dataType, dateTypes[family(dsType)])
}

// Classify returns the category of dataType. Numeric wins when a type name
// matches both lists.
func Classify(dsType models.DataSourceType, dataType string) Category {
	switch {
	case IsNumeric(dsType, dataType):
		return Numeric
	case IsDate(dsType, dataType):
		return Date
	default:
		return Other
	}
}

// SupportsMinMax reports whether MIN/MAX is meaningful for dataType.
func SupportsMinMax(dsType models.DataSourceType, dataType string) bool {
	return Classify(dsType, dataType) != Other
}
