//go:build mssql || all_adapters

package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Adapter provides SQL Server connectivity with SQL, service principal and
// access token authentication.
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
		return fmt.Errorf("invalid sqlserver credentials: %w", err)
	}

	driver, dsn := buildConnectionString(cfg)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connection test failed: %w", err)
	}

	a.config = cfg
	a.db = db
	a.logger.Debug("sqlserver pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("auth_method", cfg.AuthMethod),
	)
	return nil
}

// Query runs sql with @p1, @p2 positional params.
func (a *Adapter) Query(ctx context.Context, query string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.db == nil {
		return nil, fmt.Errorf("sqlserver adapter is not initialized")
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

// TestConnection verifies the server is reachable and the session is on the
// configured database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("sqlserver adapter is not initialized")
	}
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
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
	return models.DataSourceSQLServer
}

var _ datasource.DatabaseAdapter = (*Adapter)(nil)
