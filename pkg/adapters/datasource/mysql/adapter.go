//go:build mysql || all_adapters

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Adapter provides MySQL and MariaDB connectivity.
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

// Initialize parses credentials, opens the pool and pings the server.
func (a *Adapter) Initialize(ctx context.Context, credentials map[string]any) error {
	cfg, err := FromMap(credentials)
	if err != nil {
		return fmt.Errorf("invalid mysql credentials: %w", err)
	}

	connector, err := driver.NewConnector(driverConfig(cfg))
	if err != nil {
		return fmt.Errorf("create mysql connector: %w", err)
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
	a.logger.Debug("mysql pool ready", zap.String("host", cfg.Host))
	return nil
}

// Query runs sql with ? placeholders.
func (a *Adapter) Query(ctx context.Context, query string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.db == nil {
		return nil, fmt.Errorf("mysql adapter is not initialized")
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

// TestConnection pings and runs a trivial query.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("mysql adapter is not initialized")
	}
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var one int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("test query failed: %w", err)
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
	return models.DataSourceMySQL
}

var _ datasource.DatabaseAdapter = (*Adapter)(nil)
