package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// catalog is one engine's set of metadata queries. An empty scope argument
// means "all". Implementations return errors; the Introspector degrades them.
type catalog interface {
	listDatabases(ctx context.Context) ([]models.Database, error)
	listSchemas(ctx context.Context, database string) ([]models.Schema, error)
	listTables(ctx context.Context, database, schema string) ([]models.Table, error)
	listColumns(ctx context.Context, database, schema, table string) ([]models.Column, error)
	listViews(ctx context.Context, database, schema string) ([]models.View, error)
	tableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error)
}

// tableSizer is implemented by engines whose table listing does not carry
// row counts and sizes. The sizes are looked up in bulk after listing.
type tableSizer interface {
	tableSizes(ctx context.Context, tables []models.Table) (map[tableKey]tableSize, error)
}

type indexLister interface {
	listIndexes(ctx context.Context, database, schema string) ([]models.Index, error)
}

type foreignKeyLister interface {
	listForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error)
}

type tableKey struct {
	database, schema, table string
}

func keyOf(t models.Table) tableKey {
	return tableKey{database: t.Database, schema: t.Schema, table: t.Name}
}

type tableSize struct {
	rowCount     *int64
	sizeBytes    *int64
	lastModified *time.Time
}

// runner issues catalog queries through the adapter.
type runner struct {
	adapter     datasource.DatabaseAdapter
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int
}

func (r *runner) rows(ctx context.Context, sql string, args ...any) ([]row, error) {
	r.logger.Debug("Catalog query", zap.String("query", logging.SanitizeQuery(sql)))
	res, err := r.adapter.Query(ctx, sql, args, 0, r.timeout)
	if err != nil {
		return nil, err
	}
	out := make([]row, len(res.Rows))
	for i, m := range res.Rows {
		out[i] = row(m)
	}
	return out, nil
}

// fanOut runs fn once per scope with bounded concurrency and concatenates the
// results in scope order. A failing scope is logged and contributes nothing;
// only context errors abort.
func fanOut[T any](ctx context.Context, r *runner, what string, scopes []string, fn func(ctx context.Context, scope string) ([]T, error)) ([]T, error) {
	results := make([][]T, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.concurrency
	if limit <= 0 {
		limit = len(scopes)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, scope := range scopes {
		g.Go(func() error {
			items, err := fn(gctx, scope)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Warn("Could not read catalog scope",
					zap.String("kind", what),
					zap.String("scope", scope),
					zap.String("error", logging.SanitizeError(err)))
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

// predicates collects equality conditions for scoped catalog queries.
type predicates struct {
	placeholder func(n int) string
	conds       []string
	args        []any
}

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }
func questionPlaceholder(int) string { return "?" }
func atPlaceholder(n int) string { return "@p" + strconv.Itoa(n) }

// eq adds column = value unless value is empty.
func (p *predicates) eq(column, value string) {
	if value == "" {
		return
	}
	p.args = append(p.args, value)
	p.conds = append(p.conds, column+" = "+p.placeholder(len(p.args)))
}

// scoped wraps base in a derived table so filters and ordering apply to its
// output column names.
func (p *predicates) scoped(base, orderBy string) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM (")
	b.WriteString(base)
	b.WriteString("\n) q")
	if len(p.conds) > 0 {
		b.WriteString("\nWHERE ")
		for i, c := range p.conds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("q.")
			b.WriteString(c)
		}
	}
	if orderBy != "" {
		b.WriteString("\nORDER BY ")
		b.WriteString(orderBy)
	}
	return b.String()
}

// mapTableType normalizes engine table type names.
func mapTableType(engineType string) models.TableType {
	t := strings.ToUpper(engineType)
	switch {
	case strings.Contains(t, "MATERIALIZED"):
		return models.TableTypeMaterializedView
	case strings.Contains(t, "VIEW"):
		return models.TableTypeView
	case strings.Contains(t, "FOREIGN"), strings.Contains(t, "EXTERNAL"):
		return models.TableTypeExternal
	case strings.Contains(t, "TEMPORARY"):
		return models.TableTypeTemporary
	default:
		return models.TableTypeTable
	}
}

// row is one catalog result row. Lookups ignore key case because engines
// differ in how they case result column names.
type row map[string]any

func (r row) get(key string) (any, bool) {
	if v, ok := r[key]; ok {
		return v, true
	}
	if v, ok := r[strings.ToUpper(key)]; ok {
		return v, true
	}
	if v, ok := r[strings.ToLower(key)]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// str returns the value as a string, or "" when absent or NULL.
func (r row) str(key string) string {
	v, ok := r.get(key)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

// strPtr is str that keeps NULL distinct from the empty string.
func (r row) strPtr(key string) *string {
	v, ok := r.get(key)
	if !ok || v == nil {
		return nil
	}
	s := r.str(key)
	return &s
}

func (r row) int64Ptr(key string) *int64 {
	v, ok := r.get(key)
	if !ok || v == nil {
		return nil
	}
	n, ok := toInt64(v)
	if !ok {
		return nil
	}
	return &n
}

func (r row) int64Value(key string) int64 {
	if p := r.int64Ptr(key); p != nil {
		return *p
	}
	return 0
}

func (r row) boolValue(key string) bool {
	v, ok := r.get(key)
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1", "t":
			return true
		}
		return false
	}
	n, ok := toInt64(v)
	return ok && n != 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (r row) timePtr(key string) *time.Time {
	v, ok := r.get(key)
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case time.Time:
		return &val
	case *time.Time:
		return val
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return &t
			}
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case []byte:
		return toInt64(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// nonNegative drops the sentinel values some catalogs use for "unknown".
func nonNegative(p *int64) *int64 {
	if p == nil || *p < 0 {
		return nil
	}
	return p
}

// splitList splits a comma separated aggregate, dropping blanks.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// metadata builds a metadata map from the non-NULL values of keys.
func (r row) metadata(keys ...string) map[string]any {
	var m map[string]any
	for _, k := range keys {
		v, ok := r.get(k)
		if !ok || v == nil {
			continue
		}
		if m == nil {
			m = make(map[string]any, len(keys))
		}
		m[k] = v
	}
	return m
}
