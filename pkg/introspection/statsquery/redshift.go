package statsquery

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// redshiftBuilder uses Postgres quoting but has no TABLESAMPLE and no
// string_agg, so sampling is ORDER BY RANDOM() and concatenation is LISTAGG.
type redshiftBuilder struct{}

var _ Builder = redshiftBuilder{}

func (redshiftBuilder) Build(ref TableRef, cols []models.Column) string {
	table := pgx.Identifier{ref.Schema, ref.Table}.Sanitize()
	if ref.Schema == "" {
		table = pgx.Identifier{ref.Table}.Sanitize()
	}
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT * FROM %s ORDER BY RANDOM() LIMIT %d", table, SampleRows),
	}
	for i, c := range cols {
		col := pgx.Identifier{c.Name}.Sanitize()
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourceRedshift, c.DataType)

		sel := fmt.Sprintf(`
        COUNT(DISTINCT %s) AS distinct_count_%s,
        COUNT(*) - COUNT(%s) AS null_count_%s`, col, alias, col, alias)
		if minMax {
			sel += fmt.Sprintf(`,
        MIN(%s) AS min_%s,
        MAX(%s) AS max_%s`, col, alias, col, alias)
		}
		q.rawStats = append(q.rawStats, sel)

		q.sampleValues = append(q.sampleValues, fmt.Sprintf(`
    SELECT %s::varchar AS column_name,
           LISTAGG(
               CASE
                   WHEN LEN(sample_val) > %d
                   THEN LEFT(sample_val, %d) || '...'
                   ELSE sample_val
               END,
               ','
           ) WITHIN GROUP (ORDER BY sample_val) AS sample_values
    FROM (
        SELECT DISTINCT %s::varchar AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        LIMIT %d
    ) samples`, literal(c.Name), MaxSampleValueLength, MaxSampleValueLength, col, col, SampleValuesPerColumn))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("rs.min_%s::varchar", alias)
			maxExpr = fmt.Sprintf("rs.max_%s::varchar", alias)
		}
		q.stats = append(q.stats, statsBranch(literal(c.Name)+"::varchar", alias, minExpr, maxExpr))
	}
	return q.String()
}
