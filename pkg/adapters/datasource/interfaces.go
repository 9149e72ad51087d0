package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// DatabaseAdapter executes raw SQL against one warehouse.
// Implementations own their connection and must be closed when done.
type DatabaseAdapter interface {
	// Initialize opens the connection using engine-specific credentials.
	Initialize(ctx context.Context, credentials map[string]any) error

	// Query runs sql and collects at most maxRows rows (0 means no limit).
	// A positive timeout bounds the call in addition to ctx.
	Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*QueryResult, error)

	// TestConnection verifies the warehouse is reachable with valid credentials.
	// Returns nil if the connection is healthy.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error

	// GetDataSourceType reports the engine this adapter talks to.
	GetDataSourceType() models.DataSourceType
}

// FieldInfo describes one column of a result set. Optional attributes are
// nil when the driver does not report them.
type FieldInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nullable  *bool  `json:"nullable,omitempty"`
	Length    *int64 `json:"length,omitempty"`
	Precision *int64 `json:"precision,omitempty"`
	Scale     *int64 `json:"scale,omitempty"`
}

// QueryResult contains the rows of one query keyed by result column name.
type QueryResult struct {
	Rows          []map[string]any `json:"rows"`
	Fields        []FieldInfo      `json:"fields"`
	RowCount      int              `json:"row_count"`
	TotalRowCount *int64           `json:"total_row_count,omitempty"`
	HasMoreRows   bool             `json:"has_more_rows"`
}

// DefaultQueryLimit is applied by callers that pass user SQL through without
// an explicit limit.
const DefaultQueryLimit = 1000

// WithTimeout derives a context bounded by timeout when it is positive.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// ProjectScopedAdapter is implemented by adapters whose catalog lives under a
// cloud project and region, such as BigQuery.
type ProjectScopedAdapter interface {
	DatabaseAdapter
	ProjectID() string
	Location() string
}

// Unwrap returns the innermost adapter beneath any decorators.
func Unwrap(a DatabaseAdapter) DatabaseAdapter {
	for {
		w, ok := a.(interface{ Unwrap() DatabaseAdapter })
		if !ok {
			return a
		}
		a = w.Unwrap()
	}
}
