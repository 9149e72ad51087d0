package typeclass

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		dsType   models.DataSourceType
		dataType string
		want     Category
	}{
		{models.DataSourcePostgres, "integer", Numeric},
		{models.DataSourcePostgres, "double precision", Numeric},
		{models.DataSourcePostgres, "timestamp without time zone", Date},
		{models.DataSourcePostgres, "character varying", Other},
		{models.DataSourcePostgres, "jsonb", Other},
		{models.DataSourceRedshift, "bigint", Numeric},
		{models.DataSourceRedshift, "date", Date},
		{models.DataSourceSnowflake, "NUMBER", Numeric},
		{models.DataSourceSnowflake, "TIMESTAMP_NTZ", Date},
		{models.DataSourceSnowflake, "VARIANT", Other},
		{models.DataSourceMySQL, "decimal", Numeric},
		{models.DataSourceMySQL, "year", Date},
		{models.DataSourceMySQL, "varchar", Other},
		{models.DataSourceSQLServer, "money", Numeric},
		{models.DataSourceSQLServer, "datetimeoffset", Date},
		{models.DataSourceSQLServer, "nvarchar", Other},
		{models.DataSourceBigQuery, "INT64", Numeric},
		{models.DataSourceBigQuery, "DATETIME", Date},
		{models.DataSourceBigQuery, "STRING", Other},
		{models.DataSourceType("oracle"), "number", Other},
	}

	for _, tt := range tests {
		t.Run(string(tt.dsType)+"/"+tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.dsType, tt.dataType))
			assert.Equal(t, tt.want != Other, SupportsMinMax(tt.dsType, tt.dataType))
		})
	}
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "numeric", Numeric.String())
	assert.Equal(t, "date", Date.String())
	assert.Equal(t, "other", Other.String())
}
