// Package statsquery builds the single-scan column statistics query for each
// warehouse dialect.
//
// Every dialect produces the same result shape, one row per column:
//
//	column_name, distinct_count, null_count, min_value, max_value, sample_values
//
// raw_stats aggregates every column in one pass over the table, sample_data
// draws roughly 1000 rows, sample_values concatenates up to 20 distinct values
// per column and stats unpivots raw_stats into rows.
package statsquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

const (
	// SampleRows bounds the sample_data CTE.
	SampleRows = 1000
	// SampleValuesPerColumn bounds the distinct values concatenated per column.
	SampleValuesPerColumn = 20
	// MaxSampleValueLength is the length beyond which a sample value is cut and
	// suffixed with "...".
	MaxSampleValueLength = 100
)

// TableRef names the table to analyze. Engines that have no database level in
// table references ignore Database.
type TableRef struct {
	Database string
	Schema   string
	Table    string
}

func (r TableRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Database, r.Schema, r.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Builder renders the statistics query for one table in one dialect.
type Builder interface {
	// Build returns the query text. cols must not be empty.
	Build(ref TableRef, cols []models.Column) string
}

// For returns the builder for dsType.
func For(dsType models.DataSourceType) (Builder, error) {
	switch dsType {
	case models.DataSourcePostgres:
		return postgresBuilder{}, nil
	case models.DataSourceRedshift:
		return redshiftBuilder{}, nil
	case models.DataSourceSnowflake:
		return snowflakeBuilder{}, nil
	case models.DataSourceMySQL:
		return mysqlBuilder{}, nil
	case models.DataSourceSQLServer:
		return sqlServerBuilder{}, nil
	case models.DataSourceBigQuery:
		return bigQueryBuilder{}, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDatasourceType, dsType)
}

var (
	nonIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	leadingDigit  = regexp.MustCompile(`^(\d)`)
)

// SanitizeColumnName turns a column name into a lowercase identifier fragment
// usable in an unquoted alias.
func SanitizeColumnName(name string) string {
	s := nonIdentChars.ReplaceAllString(name, "_")
	s = leadingDigit.ReplaceAllString(s, "_$1")
	return strings.ToLower(s)
}

// aliases returns one unique alias suffix per column. Names that sanitize to
// the same fragment get a positional suffix.
func aliases(cols []models.Column) []string {
	out := make([]string, len(cols))
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		a := SanitizeColumnName(c.Name)
		for seen[a] {
			a = a + "_" + strconv.Itoa(i)
		}
		seen[a] = true
		out[i] = a
	}
	return out
}

// literal quotes s as a standard SQL string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// query is the dialect-independent outline filled in by each builder.
type query struct {
	rawStats     []string
	from         string
	sampleData   string
	sampleValues []string
	stats        []string
}

func (q query) String() string {
	var b strings.Builder
	b.WriteString("WITH raw_stats AS (\n    SELECT")
	b.WriteString(strings.Join(q.rawStats, ","))
	b.WriteString("\n    FROM ")
	b.WriteString(q.from)
	b.WriteString("\n),\nsample_data AS (\n    ")
	b.WriteString(q.sampleData)
	b.WriteString("\n),\nsample_values AS (")
	b.WriteString(strings.Join(q.sampleValues, "\n    UNION ALL"))
	b.WriteString("\n),\nstats AS (")
	b.WriteString(strings.Join(q.stats, "\n    UNION ALL"))
	b.WriteString(`
)
SELECT
    s.column_name,
    s.distinct_count,
    s.null_count,
    s.min_value,
    s.max_value,
    sv.sample_values
FROM stats s
LEFT JOIN sample_values sv ON s.column_name = sv.column_name
ORDER BY s.column_name`)
	return b.String()
}

// statsBranch renders one unpivot row of the stats CTE. minExpr and maxExpr
// are empty when the column gets no MIN/MAX.
func statsBranch(nameLiteral, alias, minExpr, maxExpr string) string {
	if minExpr == "" {
		minExpr, maxExpr = "NULL", "NULL"
	}
	return fmt.Sprintf(`
    SELECT
        %s AS column_name,
        rs.distinct_count_%s AS distinct_count,
        rs.null_count_%s AS null_count,
        %s AS min_value,
        %s AS max_value
    FROM raw_stats rs`, nameLiteral, alias, alias, minExpr, maxExpr)
}
