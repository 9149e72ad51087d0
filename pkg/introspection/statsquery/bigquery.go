package statsquery

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// bigQueryBuilder treats Database as the project and Schema as the dataset.
type bigQueryBuilder struct{}

var _ Builder = bigQueryBuilder{}

// QuoteBigQuery backtick-quotes one path element.
func QuoteBigQuery(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "\\`") + "`"
}

func bigQueryTable(ref TableRef) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ref.Database, ref.Schema, ref.Table} {
		if p != "" {
			parts = append(parts, QuoteBigQuery(p))
		}
	}
	return strings.Join(parts, ".")
}

// bigQueryLiteral escapes for GoogleSQL, where quotes are backslash escaped.
func bigQueryLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (bigQueryBuilder) Build(ref TableRef, cols []models.Column) string {
	table := bigQueryTable(ref)
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT * FROM %s TABLESAMPLE SYSTEM (1 PERCENT) LIMIT %d", table, SampleRows),
	}
	for i, c := range cols {
		col := QuoteBigQuery(c.Name)
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourceBigQuery, c.DataType)

		sel := fmt.Sprintf(`
        COUNT(DISTINCT %s) AS distinct_count_%s,
        COUNTIF(%s IS NULL) AS null_count_%s`, col, alias, col, alias)
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
                   WHEN LENGTH(sample_val) > %d
                   THEN CONCAT(SUBSTR(sample_val, 1, %d), '...')
                   ELSE sample_val
               END,
               ','
               ORDER BY sample_val
           ) AS sample_values
    FROM (
        SELECT DISTINCT CAST(%s AS STRING) AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        LIMIT %d
    )`, bigQueryLiteral(c.Name), MaxSampleValueLength, MaxSampleValueLength, col, col, SampleValuesPerColumn))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("CAST(rs.min_%s AS STRING)", alias)
			maxExpr = fmt.Sprintf("CAST(rs.max_%s AS STRING)", alias)
		} else {
			minExpr = "CAST(NULL AS STRING)"
			maxExpr = minExpr
		}
		q.stats = append(q.stats, statsBranch(bigQueryLiteral(c.Name), alias, minExpr, maxExpr))
	}
	return q.String()
}
