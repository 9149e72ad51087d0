package introspection

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// route answers every query containing match.
type route struct {
	match string
	rows  []map[string]any
	err   error
}

// mockAdapter answers queries from substring routes, checked in the order
// they were added. Unmatched queries return no rows. Statistics queries can
// be slowed down to observe how many run at once.
type mockAdapter struct {
	dsType models.DataSourceType

	mu      sync.Mutex
	routes  []route
	calls   map[string]int
	queries []string
	args    [][]any

	statsDelay  time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var _ datasource.DatabaseAdapter = (*mockAdapter)(nil)

func newMockAdapter(dsType models.DataSourceType) *mockAdapter {
	return &mockAdapter{dsType: dsType, calls: make(map[string]int)}
}

func (m *mockAdapter) on(match string, rows ...map[string]any) *mockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{match: match, rows: rows})
	return m
}

func (m *mockAdapter) fail(match string, err error) *mockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append([]route{{match: match, err: err}}, m.routes...)
	return m
}

func (m *mockAdapter) callCount(match string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[match]
}

func (m *mockAdapter) totalQueries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func (m *mockAdapter) lastQuery() (string, []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return "", nil
	}
	return m.queries[len(m.queries)-1], m.args[len(m.args)-1]
}

func (m *mockAdapter) Initialize(context.Context, map[string]any) error { return nil }

func (m *mockAdapter) Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queries = append(m.queries, sql)
	m.args = append(m.args, params)
	var matched *route
	for i := range m.routes {
		if strings.Contains(sql, m.routes[i].match) {
			matched = &m.routes[i]
			m.calls[matched.match]++
			break
		}
	}
	delay := m.statsDelay
	m.mu.Unlock()

	if strings.Contains(sql, "raw_stats") && delay > 0 {
		n := m.inFlight.Add(1)
		for {
			peak := m.maxInFlight.Load()
			if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		m.inFlight.Add(-1)
	}

	if matched == nil {
		return &datasource.QueryResult{Rows: []map[string]any{}}, nil
	}
	if matched.err != nil {
		return nil, matched.err
	}
	rows := make([]map[string]any, len(matched.rows))
	copy(rows, matched.rows)
	return &datasource.QueryResult{Rows: rows, RowCount: len(rows)}, nil
}

func (m *mockAdapter) TestConnection(context.Context) error { return nil }

func (m *mockAdapter) Close() error { return nil }

func (m *mockAdapter) GetDataSourceType() models.DataSourceType { return m.dsType }

// projectAdapter is a mock BigQuery adapter exposing its project.
type projectAdapter struct {
	*mockAdapter
	project, location string
}

func (p *projectAdapter) ProjectID() string { return p.project }
func (p *projectAdapter) Location() string  { return p.location }

// Postgres catalog fixture: two databases, four tables, three views.
const (
	routeStats       = "raw_stats"
	routeDatabases   = "pg_database"
	routeSchemas     = "information_schema.schemata"
	routeTables      = "information_schema.tables"
	routeColumns     = "information_schema.columns"
	routeViews       = "information_schema.views"
	routeIndexes     = "pg_index ix"
	routeForeignKeys = "pg_constraint"
	routeTableStats  = "pg_stat_user_tables"
)

func tableRow(db, schema, name string, rows int64) map[string]any {
	return map[string]any{
		"table_catalog": db, "table_schema": schema, "table_name": name,
		"table_type": "BASE TABLE", "row_count": rows, "size_bytes": rows * 100,
	}
}

func columnRow(db, schema, table, name string, pos int, dataType string) map[string]any {
	return map[string]any{
		"table_catalog": db, "table_schema": schema, "table_name": table,
		"column_name": name, "ordinal_position": int64(pos), "data_type": dataType,
		"is_nullable": "YES",
	}
}

func statRow(name string, distinct, nulls int64, lo, hi any, samples string) map[string]any {
	return map[string]any{
		"column_name": name, "distinct_count": distinct, "null_count": nulls,
		"min_value": lo, "max_value": hi, "sample_values": samples,
	}
}

func postgresFixture() *mockAdapter {
	return newMockAdapter(models.DataSourcePostgres).
		on(routeStats,
			statRow("id", 100, 0, "1", "100", "1,2,3"),
			statRow("status", 3, 2, nil, nil, "new,paid,shipped"),
			statRow("created_at", 98, 0, "2024-01-01", "2024-12-31", "2024-03-01"),
			statRow("name", 50, 1, nil, nil, "Ann,Bob"),
			statRow("day", 30, 0, "2024-01-01", "2024-01-30", "2024-01-01"),
			statRow("payload", 10, 0, nil, nil, `{"a":1}`),
		).
		on(routeDatabases,
			map[string]any{"name": "analytics", "owner": "postgres"},
			map[string]any{"name": "warehouse", "owner": "postgres"},
		).
		on(routeSchemas,
			map[string]any{"catalog_name": "analytics", "schema_name": "public"},
			map[string]any{"catalog_name": "analytics", "schema_name": "reporting"},
			map[string]any{"catalog_name": "warehouse", "schema_name": "public"},
		).
		on(routeTables,
			tableRow("analytics", "public", "orders", 1000),
			tableRow("analytics", "public", "customers", 50),
			tableRow("analytics", "reporting", "daily", 30),
			tableRow("warehouse", "public", "events", 5000),
		).
		on(routeColumns,
			columnRow("analytics", "public", "orders", "id", 1, "integer"),
			columnRow("analytics", "public", "orders", "status", 2, "character varying"),
			columnRow("analytics", "public", "orders", "created_at", 3, "timestamp without time zone"),
			columnRow("analytics", "public", "customers", "id", 1, "integer"),
			columnRow("analytics", "public", "customers", "name", 2, "text"),
			columnRow("analytics", "reporting", "daily", "day", 1, "date"),
			columnRow("warehouse", "public", "events", "payload", 1, "jsonb"),
		).
		on(routeViews,
			map[string]any{"table_catalog": "analytics", "table_schema": "public", "table_name": "v_orders", "view_definition": "SELECT * FROM orders"},
			map[string]any{"table_catalog": "analytics", "table_schema": "reporting", "table_name": "v_daily", "view_definition": "SELECT * FROM daily"},
			map[string]any{"table_catalog": "warehouse", "table_schema": "public", "table_name": "v_events", "view_definition": "SELECT * FROM events"},
		).
		on(routeIndexes,
			map[string]any{"table_catalog": "analytics", "table_schema": "public", "table_name": "orders", "index_name": "orders_pkey", "is_unique": true, "is_primary": true, "index_type": "btree", "column_names": "id"},
			map[string]any{"table_catalog": "warehouse", "table_schema": "public", "table_name": "events", "index_name": "events_pkey", "is_unique": true, "is_primary": true, "index_type": "btree", "column_names": "payload"},
		).
		on(routeForeignKeys,
			map[string]any{"table_catalog": "analytics", "table_schema": "public", "table_name": "orders", "constraint_name": "orders_customer_fk", "referenced_schema": "public", "referenced_table": "customers", "column_names": "customer_id", "referenced_column_names": "id", "on_delete": "CASCADE", "on_update": "NO ACTION"},
		).
		on(routeTableStats, map[string]any{"row_count": int64(1000), "size_bytes": int64(65536)})
}
