package introspection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func ordersColumns() []models.Column {
	return []models.Column{
		{Name: "id", Table: "orders", Schema: "public", Database: "analytics", DataType: "integer"},
		{Name: "status", Table: "orders", Schema: "public", Database: "analytics", DataType: "character varying"},
		{Name: "created_at", Table: "orders", Schema: "public", Database: "analytics", DataType: "timestamp without time zone"},
	}
}

func TestColumnStatisticsFor_OrdersTable(t *testing.T) {
	adapter := postgresFixture()
	in := newTestIntrospector(t, adapter)

	stats, err := in.ColumnStatisticsFor(context.Background(), "analytics", "public", "orders", ordersColumns())
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, 1, adapter.callCount(routeStats), "one query per table")

	byName := make(map[string]models.ColumnStatistics)
	for _, s := range stats {
		byName[s.ColumnName] = s
		assert.Equal(t, models.StatisticsComputed, s.Status)
	}

	id := byName["id"]
	require.NotNil(t, id.MinValue)
	require.NotNil(t, id.MaxValue)
	assert.Equal(t, "1", *id.MinValue)
	assert.Equal(t, "100", *id.MaxValue)
	require.NotNil(t, id.DistinctCount)
	assert.Equal(t, int64(100), *id.DistinctCount)

	created := byName["created_at"]
	assert.NotNil(t, created.MinValue)
	assert.NotNil(t, created.MaxValue)

	status := byName["status"]
	assert.Nil(t, status.MinValue)
	assert.Nil(t, status.MaxValue)
	require.NotNil(t, status.NullCount)
	assert.Equal(t, int64(2), *status.NullCount)
	require.NotNil(t, status.SampleValues)
	assert.Equal(t, "new,paid,shipped", *status.SampleValues)

	sql, _ := adapter.lastQuery()
	assert.Contains(t, sql, `"public"."orders"`)
	assert.NotContains(t, sql, `MIN("status")`)
}

func TestColumnStatisticsFor_QueryFailureYieldsPlaceholders(t *testing.T) {
	adapter := postgresFixture().fail(routeStats, errors.New("permission denied for table orders"))
	in := newTestIntrospector(t, adapter)
	cols := ordersColumns()

	stats, err := in.ColumnStatisticsFor(context.Background(), "analytics", "public", "orders", cols)
	require.NoError(t, err)
	require.Len(t, stats, len(cols))
	for i, s := range stats {
		assert.Equal(t, cols[i].Name, s.ColumnName)
		assert.Equal(t, models.StatisticsFailed, s.Status)
		assert.Nil(t, s.DistinctCount)
		assert.Nil(t, s.NullCount)
		assert.Nil(t, s.MinValue)
		assert.Nil(t, s.MaxValue)
		assert.Nil(t, s.SampleValues)
	}
}

func TestColumnStatisticsFor_MissingRowIsFailed(t *testing.T) {
	adapter := newMockAdapter(models.DataSourcePostgres).
		on(routeStats, statRow("id", 5, 0, "1", "5", "1,2"))
	in := newTestIntrospector(t, adapter)

	stats, err := in.ColumnStatisticsFor(context.Background(), "analytics", "public", "orders", ordersColumns())
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, models.StatisticsComputed, stats[0].Status)
	assert.Equal(t, models.StatisticsFailed, stats[1].Status)
	assert.Equal(t, models.StatisticsFailed, stats[2].Status)
}

func TestColumnStatisticsFor_UpperCaseResultColumns(t *testing.T) {
	adapter := newMockAdapter(models.DataSourceSnowflake).
		on(routeStats, map[string]any{
			"COLUMN_NAME": "ID", "DISTINCT_COUNT": "7", "NULL_COUNT": "0",
			"MIN_VALUE": "1", "MAX_VALUE": "7", "SAMPLE_VALUES": "1,2",
		})
	in := newTestIntrospector(t, adapter)

	stats, err := in.ColumnStatisticsFor(context.Background(), "DB", "PUBLIC", "T",
		[]models.Column{{Name: "ID", DataType: "NUMBER"}})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, models.StatisticsComputed, stats[0].Status)
	require.NotNil(t, stats[0].DistinctCount)
	assert.Equal(t, int64(7), *stats[0].DistinctCount)
}

func TestColumnStatisticsFor_NoColumns(t *testing.T) {
	adapter := postgresFixture()
	in := newTestIntrospector(t, adapter)

	stats, err := in.ColumnStatisticsFor(context.Background(), "analytics", "public", "orders", nil)
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.Zero(t, adapter.totalQueries())
}

func TestColumnStatisticsFor_ContextCanceled(t *testing.T) {
	in := newTestIntrospector(t, postgresFixture())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.ColumnStatisticsFor(ctx, "analytics", "public", "orders", ordersColumns())
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetColumnStatistics_LooksUpColumns(t *testing.T) {
	adapter := postgresFixture()
	in := newTestIntrospector(t, adapter)

	ctx := context.Background()
	_, err := in.GetColumns(ctx, "", "", "")
	require.NoError(t, err)

	stats, err := in.GetColumnStatistics(ctx, "analytics", "public", "customers")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "id", stats[0].ColumnName)
	assert.Equal(t, "name", stats[1].ColumnName)
	assert.Equal(t, 1, adapter.callCount(routeColumns))
	assert.Equal(t, 1, adapter.callCount(routeStats))
}

func TestTruncateSampleValues(t *testing.T) {
	long := strings.Repeat("x", 150)
	jsonCut := `{"a":{"b":"` + strings.Repeat("x", 50) + `"}` + strings.Repeat("y", 60) + "}"

	repeat := func(v string, n int) string {
		vals := make([]string, n)
		for i := range vals {
			vals[i] = v
		}
		return strings.Join(vals, ",")
	}
	numbered := func(n int) string {
		vals := make([]string, n)
		for i := range vals {
			vals[i] = strings.Repeat(string(rune('a'+i%26)), 3)
		}
		return strings.Join(vals, ",")
	}
	maxLen := func(n int64) *int64 { return &n }

	tests := []struct {
		name      string
		samples   string
		dataType  string
		maxLength *int64
		want      string
	}{
		{
			name:     "empty",
			samples:  "",
			dataType: "integer",
			want:     "",
		},
		{
			name:     "blank entries dropped",
			samples:  "a,, ,b",
			dataType: "integer",
			want:     "a,b",
		},
		{
			name:     "long value cut at 100",
			samples:  "short," + long,
			dataType: "integer",
			want:     "short," + strings.Repeat("x", 100) + "...",
		},
		{
			name:     "normal columns keep 20",
			samples:  numbered(25),
			dataType: "integer",
			want:     numbered(20),
		},
		{
			name:     "json keeps 3",
			samples:  `{"a":1},{"b":2},{"c":3},{"d":4}`,
			dataType: "jsonb",
			want:     `{"a":1},{"b":2},{"c":3}`,
		},
		{
			name:     "json cut at closing brace",
			samples:  jsonCut,
			dataType: "JSON",
			want:     `{"a":{"b":"` + strings.Repeat("x", 50) + `"` + "...}",
		},
		{
			name:     "json without boundary",
			samples:  `{"k":"` + long + `"}`,
			dataType: "json",
			want:     (`{"k":"` + long)[:100] + "...",
		},
		{
			name:      "wide text column keeps 10",
			samples:   repeat("abcdefghij", 15),
			dataType:  "text",
			maxLength: maxLen(1000),
			want:      repeat("abcdefghij", 10),
		},
		{
			name:     "long text keeps 5 cut at 50",
			samples:  repeat(strings.Repeat("m", 150), 8),
			dataType: "character varying",
			want:     repeat(strings.Repeat("m", 50)+"...", 5),
		},
		{
			name:     "very long text keeps 3 cut at 30",
			samples:  repeat(strings.Repeat("v", 250), 6),
			dataType: "text",
			want:     repeat(strings.Repeat("v", 30)+"...", 3),
		},
		{
			name:      "narrow varchar is normal",
			samples:   repeat("abc", 25),
			dataType:  "varchar",
			maxLength: maxLen(50),
			want:      repeat("abc", 20),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateSampleValues(tt.samples, tt.dataType, tt.maxLength))
		})
	}
}

func TestApplyStatistics(t *testing.T) {
	t.Run("computed", func(t *testing.T) {
		col := models.Column{Name: "id", DataType: "integer"}
		samples := "1," + strings.Repeat("9", 120)
		n := int64(3)
		applyStatistics(&col, models.ColumnStatistics{
			ColumnName: "id", DistinctCount: &n, SampleValues: &samples, Status: models.StatisticsComputed,
		})
		assert.Equal(t, models.StatisticsComputed, col.StatisticsStatus)
		require.NotNil(t, col.DistinctCount)
		assert.Equal(t, int64(3), *col.DistinctCount)
		require.NotNil(t, col.SampleValues)
		assert.Equal(t, "1,"+strings.Repeat("9", 100)+"...", *col.SampleValues)
	})

	t.Run("failed", func(t *testing.T) {
		col := models.Column{Name: "id"}
		applyStatistics(&col, models.ColumnStatistics{ColumnName: "id", Status: models.StatisticsFailed})
		assert.Equal(t, models.StatisticsFailed, col.StatisticsStatus)
		assert.Nil(t, col.DistinctCount)
		assert.Nil(t, col.SampleValues)
	})
}

func TestTruncateSampleValues_CountsCharacters(t *testing.T) {
	accented := strings.Repeat("é", 60)
	assert.Equal(t, accented, truncateSampleValues(accented, "integer", nil), "60 characters is under the limit")

	tests := []struct {
		name     string
		samples  string
		dataType string
		want     string
	}{
		{
			name:     "multi-byte value cut at 100 characters",
			samples:  "a" + strings.Repeat("é", 150),
			dataType: "integer",
			want:     "a" + strings.Repeat("é", 99) + "...",
		},
		{
			name:     "long text cut at 50 characters",
			samples:  strings.Repeat(strings.Repeat("日", 150)+",", 7) + strings.Repeat("日", 150),
			dataType: "text",
			want:     strings.TrimSuffix(strings.Repeat(strings.Repeat("日", 50)+"...,", 5), ","),
		},
		{
			name:     "json cut at 100 characters",
			samples:  `{"k":"` + strings.Repeat("ü", 150) + `"}`,
			dataType: "jsonb",
			want:     `{"k":"` + strings.Repeat("ü", 94) + "...",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateSampleValues(tt.samples, tt.dataType, nil)
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCutRunes(t *testing.T) {
	head, cut := cutRunes("héllo", 5)
	assert.False(t, cut)
	assert.Equal(t, "héllo", head)

	head, cut = cutRunes("héllo", 2)
	assert.True(t, cut)
	assert.Equal(t, "hé", head)
}
