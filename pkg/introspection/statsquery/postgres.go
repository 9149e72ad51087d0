package statsquery

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

type postgresBuilder struct{}

var _ Builder = postgresBuilder{}

// pgComparable casts json to text; json has no equality operator.
func pgComparable(quoted, dataType string) string {
	if strings.EqualFold(strings.TrimSpace(dataType), "json") {
		return quoted + "::text"
	}
	return quoted
}

func (postgresBuilder) Build(ref TableRef, cols []models.Column) string {
	table := pgx.Identifier{ref.Schema, ref.Table}.Sanitize()
	if ref.Schema == "" {
		table = pgx.Identifier{ref.Table}.Sanitize()
	}
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT * FROM %s TABLESAMPLE SYSTEM (1) LIMIT %d", table, SampleRows),
	}
	for i, c := range cols {
		col := pgx.Identifier{c.Name}.Sanitize()
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourcePostgres, c.DataType)

		sel := fmt.Sprintf(`
        COUNT(DISTINCT %s) AS distinct_count_%s,
        COUNT(*) - COUNT(%s) AS null_count_%s`, pgComparable(col, c.DataType), alias, col, alias)
		if minMax {
			sel += fmt.Sprintf(`,
        MIN(%s) AS min_%s,
        MAX(%s) AS max_%s`, col, alias, col, alias)
		}
		q.rawStats = append(q.rawStats, sel)

		q.sampleValues = append(q.sampleValues, fmt.Sprintf(`
    SELECT %s AS column_name,
           string_agg(
               CASE
                   WHEN length(sample_val) > %d
                   THEN left(sample_val, %d) || '...'
                   ELSE sample_val
               END,
               ','
               ORDER BY sample_val
           ) AS sample_values
    FROM (
        SELECT DISTINCT %s::text AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        LIMIT %d
    ) samples`, literal(c.Name), MaxSampleValueLength, MaxSampleValueLength, col, col, SampleValuesPerColumn))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("rs.min_%s::text", alias)
			maxExpr = fmt.Sprintf("rs.max_%s::text", alias)
		}
		q.stats = append(q.stats, statsBranch(literal(c.Name)+"::text", alias, minExpr, maxExpr))
	}
	return q.String()
}
