package statsquery

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

type sqlServerBuilder struct{}

var _ Builder = sqlServerBuilder{}

// QuoteSQLServer brackets an identifier the way QUOTENAME does.
func QuoteSQLServer(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func nliteral(s string) string {
	return "N" + literal(s)
}

func (sqlServerBuilder) Build(ref TableRef, cols []models.Column) string {
	schema := ref.Schema
	if schema == "" {
		schema = "dbo"
	}
	table := QuoteSQLServer(schema) + "." + QuoteSQLServer(ref.Table)
	if ref.Database != "" {
		table = QuoteSQLServer(ref.Database) + "." + table
	}
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT TOP %d * FROM %s ORDER BY NEWID()", SampleRows, table),
	}
	for i, c := range cols {
		col := QuoteSQLServer(c.Name)
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourceSQLServer, c.DataType)

		sel := fmt.Sprintf(`
        COUNT_BIG(DISTINCT %s) AS distinct_count_%s,
        COUNT_BIG(*) - COUNT_BIG(%s) AS null_count_%s`, col, alias, col, alias)
		if minMax {
			sel += fmt.Sprintf(`,
        MIN(%s) AS min_%s,
        MAX(%s) AS max_%s`, col, alias, col, alias)
		}
		q.rawStats = append(q.rawStats, sel)

		q.sampleValues = append(q.sampleValues, fmt.Sprintf(`
    SELECT %s AS column_name,
           STRING_AGG(
               CASE
                   WHEN LEN(sample_val) > %d
                   THEN LEFT(sample_val, %d) + N'...'
                   ELSE sample_val
               END,
               N','
           ) WITHIN GROUP (ORDER BY sample_val) AS sample_values
    FROM (
        SELECT DISTINCT TOP %d CAST(%s AS NVARCHAR(MAX)) AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        ORDER BY sample_val
    ) samples`, nliteral(c.Name), MaxSampleValueLength, MaxSampleValueLength, SampleValuesPerColumn, col, col))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("CAST(rs.min_%s AS NVARCHAR(MAX))", alias)
			maxExpr = fmt.Sprintf("CAST(rs.max_%s AS NVARCHAR(MAX))", alias)
		} else {
			minExpr = "CAST(NULL AS NVARCHAR(MAX))"
			maxExpr = minExpr
		}
		q.stats = append(q.stats, statsBranch(nliteral(c.Name), alias, minExpr, maxExpr))
	}
	return q.String()
}
