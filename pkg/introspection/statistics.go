package introspection

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/statsquery"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Sample value limits applied when statistics are attached to columns.
const (
	jsonSampleCount       = 3
	sampleTruncateLength  = 100
	jsonMinCutPosition    = 50
	longTextMaxLength     = 255
	longTextAvgThreshold  = 100
	veryLongTextAvg       = 200
	normalSampleCount     = 20
	sampleValueSeparator  = ","
	truncationMarker      = "..."
	jsonTruncationClosing = "...}"
)

// GetColumnStatistics computes statistics for every column of one table with
// a single statistics query.
func (in *Introspector) GetColumnStatistics(ctx context.Context, database, schema, table string) ([]models.ColumnStatistics, error) {
	cols, err := in.GetColumns(ctx, database, schema, table)
	if err != nil {
		return nil, err
	}
	return in.ColumnStatisticsFor(ctx, database, schema, table, cols)
}

// ColumnStatisticsFor computes statistics for cols, which must belong to the
// named table. The result has exactly one record per column in cols order.
// A failed query yields records with Status failed; only context errors are
// returned.
func (in *Introspector) ColumnStatisticsFor(ctx context.Context, database, schema, table string, cols []models.Column) ([]models.ColumnStatistics, error) {
	if len(cols) == 0 {
		return []models.ColumnStatistics{}, nil
	}
	ref := statsquery.TableRef{Database: database, Schema: schema, Table: table}

	ctx, span := in.tracer.Start(ctx, "introspection.column_statistics")
	defer span.End()

	rows, err := in.r.rows(ctx, in.builder.Build(ref, cols))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		in.logger.Warn("Column statistics query failed",
			zap.String("table", ref.String()),
			zap.Int("columns", len(cols)),
			zap.String("error", logging.SanitizeError(err)))
		in.instruments.IncrementStatisticsFailures(ctx, string(in.dsType))
		span.RecordError(err)
		return failedStatistics(cols), nil
	}
	return matchStatistics(cols, rows), nil
}

func failedStatistics(cols []models.Column) []models.ColumnStatistics {
	out := make([]models.ColumnStatistics, len(cols))
	for i, c := range cols {
		out[i] = models.ColumnStatistics{ColumnName: c.Name, Status: models.StatisticsFailed}
	}
	return out
}

// matchStatistics pairs result rows with cols by column name. A column with
// no result row is reported as failed.
func matchStatistics(cols []models.Column, rows []row) []models.ColumnStatistics {
	byName := make(map[string]row, len(rows))
	for _, r := range rows {
		byName[r.str("column_name")] = r
	}
	out := make([]models.ColumnStatistics, len(cols))
	for i, c := range cols {
		r, ok := byName[c.Name]
		if !ok {
			r, ok = findFold(byName, c.Name)
		}
		if !ok {
			out[i] = models.ColumnStatistics{ColumnName: c.Name, Status: models.StatisticsFailed}
			continue
		}
		out[i] = models.ColumnStatistics{
			ColumnName:    c.Name,
			DistinctCount: r.int64Ptr("distinct_count"),
			NullCount:     r.int64Ptr("null_count"),
			MinValue:      r.strPtr("min_value"),
			MaxValue:      r.strPtr("max_value"),
			SampleValues:  nonEmpty(r.strPtr("sample_values")),
			Status:        models.StatisticsComputed,
		}
	}
	return out
}

func findFold(byName map[string]row, name string) (row, bool) {
	for k, r := range byName {
		if strings.EqualFold(k, name) {
			return r, true
		}
	}
	return nil, false
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// applyStatistics copies stats onto col, trimming sample values for display.
func applyStatistics(col *models.Column, stat models.ColumnStatistics) {
	col.StatisticsStatus = stat.Status
	if stat.Status != models.StatisticsComputed {
		return
	}
	col.DistinctCount = stat.DistinctCount
	col.NullCount = stat.NullCount
	col.MinValue = stat.MinValue
	col.MaxValue = stat.MaxValue
	col.SampleValues = nil
	if stat.SampleValues != nil {
		if s := truncateSampleValues(*stat.SampleValues, col.DataType, col.MaxLength); s != "" {
			col.SampleValues = &s
		}
	}
}

// truncateSampleValues limits the number and length of comma separated
// sample values based on the column type. JSON columns keep a few values cut
// at a structural boundary; long text columns keep fewer, shorter values.
func truncateSampleValues(samples, dataType string, maxLength *int64) string {
	var values []string
	for _, v := range strings.Split(samples, sampleValueSeparator) {
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return ""
	}

	t := strings.ToLower(dataType)
	if strings.Contains(t, "json") {
		values = firstN(values, jsonSampleCount)
		for i, v := range values {
			values[i] = truncateJSONValue(v)
		}
		return strings.Join(values, sampleValueSeparator)
	}

	if isTextType(t) {
		avg := averageLength(values)
		if (maxLength != nil && *maxLength > longTextMaxLength) || avg > longTextAvgThreshold {
			count, cut := 10, 50
			switch {
			case avg > veryLongTextAvg:
				count, cut = 3, 30
			case avg > longTextAvgThreshold:
				count = 5
			}
			values = firstN(values, count)
			for i, v := range values {
				if head, cut := cutRunes(v, cut); cut {
					values[i] = head + truncationMarker
				}
			}
			return strings.Join(values, sampleValueSeparator)
		}
	}

	values = firstN(values, normalSampleCount)
	for i, v := range values {
		if head, cut := cutRunes(v, sampleTruncateLength); cut {
			values[i] = head + truncationMarker
		}
	}
	return strings.Join(values, sampleValueSeparator)
}

func truncateJSONValue(v string) string {
	t, cut := cutRunes(v, sampleTruncateLength)
	if !cut {
		return v
	}
	// ',' and '}' are single bytes, so byte offsets into t stay on rune boundaries.
	boundary := max(strings.LastIndex(t, ","), strings.LastIndex(t, "}"))
	if boundary >= 0 && utf8.RuneCountInString(t[:boundary]) > jsonMinCutPosition {
		return t[:boundary] + jsonTruncationClosing
	}
	return t + truncationMarker
}

// cutRunes returns the first n characters of v and whether anything was cut.
func cutRunes(v string, n int) (string, bool) {
	if len(v) <= n {
		return v, false
	}
	count := 0
	for i := range v {
		if count == n {
			return v[:i], true
		}
		count++
	}
	return v, false
}

func isTextType(lowerType string) bool {
	return strings.Contains(lowerType, "text") ||
		strings.Contains(lowerType, "varchar") ||
		strings.Contains(lowerType, "char")
}

func averageLength(values []string) float64 {
	total := 0
	for _, v := range values {
		total += utf8.RuneCountInString(v)
	}
	return float64(total) / float64(len(values))
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
