package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataSourceType(t *testing.T) {
	tests := []struct {
		input    string
		expected DataSourceType
	}{
		{"postgres", DataSourcePostgres},
		{"PostgreSQL", DataSourcePostgres},
		{" mssql ", DataSourceSQLServer},
		{"sqlserver", DataSourceSQLServer},
		{"Snowflake", DataSourceSnowflake},
		{"bq", DataSourceBigQuery},
		{"mariadb", DataSourceMySQL},
		{"redshift", DataSourceRedshift},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDataSourceType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseDataSourceType_Unknown(t *testing.T) {
	_, err := ParseDataSourceType("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestAllDataSourceTypes_RoundTrip(t *testing.T) {
	for _, dsType := range AllDataSourceTypes {
		got, err := ParseDataSourceType(dsType.String())
		require.NoError(t, err)
		assert.Equal(t, dsType, got)
	}
}
