//go:build redshift || all_adapters

package redshift

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Adapter provides Amazon Redshift connectivity over the Postgres wire protocol.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter returns an uninitialized adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{logger: logger}
}

// Initialize parses credentials, opens the pool and pings the cluster.
func (a *Adapter) Initialize(ctx context.Context, credentials map[string]any) error {
	cfg, err := FromMap(credentials)
	if err != nil {
		return fmt.Errorf("invalid redshift credentials: %w", err)
	}

	connector, err := pq.NewConnector(buildConnectionString(cfg))
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping failed: %w", err)
	}

	a.config = cfg
	a.db = db
	a.logger.Debug("redshift pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return nil
}

// Query runs sql with $1, $2 positional params.
func (a *Adapter) Query(ctx context.Context, query string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.db == nil {
		return nil, fmt.Errorf("redshift adapter is not initialized")
	}
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.CollectSQLRows(rows, maxRows)
}

// TestConnection pings and checks the current database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("redshift adapter is not initialized")
	}
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if currentDB != a.config.Database {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) GetDataSourceType() models.DataSourceType {
	return models.DataSourceRedshift
}

var _ datasource.DatabaseAdapter = (*Adapter)(nil)
