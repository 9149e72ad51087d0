package statsquery

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/typeclass"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

type mysqlBuilder struct{}

var _ Builder = mysqlBuilder{}

// QuoteMySQL backtick-quotes an identifier.
func QuoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// mysqlLiteral also escapes backslashes, which MySQL treats as escapes by default.
func mysqlLiteral(s string) string {
	return literal(strings.ReplaceAll(s, `\`, `\\`))
}

// Build qualifies the table with its database; MySQL has no separate schema
// level, so ref.Schema is used when ref.Database is empty.
func (mysqlBuilder) Build(ref TableRef, cols []models.Column) string {
	db := ref.Database
	if db == "" {
		db = ref.Schema
	}
	table := QuoteMySQL(ref.Table)
	if db != "" {
		table = QuoteMySQL(db) + "." + table
	}
	names := aliases(cols)

	q := query{
		from:       table,
		sampleData: fmt.Sprintf("SELECT * FROM %s ORDER BY RAND() LIMIT %d", table, SampleRows),
	}
	for i, c := range cols {
		col := QuoteMySQL(c.Name)
		alias := names[i]
		minMax := typeclass.SupportsMinMax(models.DataSourceMySQL, c.DataType)

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
           GROUP_CONCAT(
               CASE
                   WHEN CHAR_LENGTH(sample_val) > %d
                   THEN CONCAT(LEFT(sample_val, %d), '...')
                   ELSE sample_val
               END
               ORDER BY sample_val
               SEPARATOR ','
           ) AS sample_values
    FROM (
        SELECT DISTINCT CAST(%s AS CHAR) AS sample_val
        FROM sample_data
        WHERE %s IS NOT NULL
        LIMIT %d
    ) samples`, mysqlLiteral(c.Name), MaxSampleValueLength, MaxSampleValueLength, col, col, SampleValuesPerColumn))

		var minExpr, maxExpr string
		if minMax {
			minExpr = fmt.Sprintf("CAST(rs.min_%s AS CHAR)", alias)
			maxExpr = fmt.Sprintf("CAST(rs.max_%s AS CHAR)", alias)
		}
		q.stats = append(q.stats, statsBranch(mysqlLiteral(c.Name), alias, minExpr, maxExpr))
	}
	return q.String()
}
