package statsquery

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

type snowflakeBuilder struct{}

var _ Builder = snowflakeBuilder{}

// QuoteSnowflake double-quotes an identifier, keeping its exact case.
func QuoteSnowflake(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func snowflakeTable(ref TableRef) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ref.Database, ref.Schema, ref.Table} {
		if p != "" {
			parts = append(parts, QuoteSnowflake(p))
		}
	}
	return strings.Join(parts, ".")
}

func (snowflakeBuilder) Build(ref TableRef, cols []models.Column) string {
	table := snowflakeTable(ref)
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT * FROM %s SAMPLE (%d ROWS)", table, SampleRows),
	}
	for i, c := range cols {
		col := QuoteSnowflake(c.Name)
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourceSnowflake, c.DataType)

		sel := fmt.Sprintf(`
        COUNT(DISTINCT %s) AS distinct_count_%s,
        SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) AS null_count_%s`, col, alias, col, alias)
		if minMax {
			sel += fmt.Sprintf(`,
        MIN(%s) AS min_%s,
        MAX(%s) AS max_%s`, col, alias, col, alias)
		}
		q.rawStats = append(q.rawStats, sel)

		q.sampleValues = append(q.sampleValues, fmt.Sprintf(`
    SELECT %s AS column_name,
           LISTAGG(
               CASE
                   WHEN LENGTH(sample_val) > %d
                   THEN LEFT(sample_val, %d) || '...'
                   ELSE sample_val
               END,
               ','
           ) WITHIN GROUP (ORDER BY sample_val) AS sample_values
    FROM (
        SELECT DISTINCT TO_VARCHAR(%s) AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        LIMIT %d
    )`, literal(c.Name), MaxSampleValueLength, MaxSampleValueLength, col, col, SampleValuesPerColumn))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("TO_VARCHAR(rs.min_%s)", alias)
			maxExpr = fmt.Sprintf("TO_VARCHAR(rs.max_%s)", alias)
		}
		q.stats = append(q.stats, statsBranch(literal(c.Name), alias, minExpr, maxExpr))
	}
	return q.String()
}
