//go:build postgres || all_adapters

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// Adapter provides PostgreSQL connectivity over a pgx pool.
type Adapter struct {
	config  *Config
	pool    *pgxpool.Pool
	typeMap *pgtype.Map
	logger  *zap.Logger
}

// NewAdapter returns an uninitialized adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		typeMap: pgtype.NewMap(),
		logger:  logger,
	}
}

// Initialize parses credentials and opens the pool.
func (a *Adapter) Initialize(ctx context.Context, credentials map[string]any) error {
	cfg, err := FromMap(credentials)
	if err != nil {
		return fmt.Errorf("invalid postgres credentials: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping failed: %w", err)
	}

	a.config = cfg
	a.pool = pool
	a.logger.Debug("postgres pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return nil
}

// Query runs sql with positional ($1, $2) params.
func (a *Adapter) Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.pool == nil {
		return nil, fmt.Errorf("postgres adapter is not initialized")
	}
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := a.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	fields := make([]datasource.FieldInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		fields[i] = datasource.FieldInfo{
			Name: fd.Name,
			Type: a.typeNameFromOID(fd.DataTypeOID),
		}
	}

	result := &datasource.QueryResult{
		Rows:   make([]map[string]any, 0),
		Fields: fields,
	}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.HasMoreRows = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// TestConnection verifies connectivity and that the session landed on the
// configured database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.pool == nil {
		return fmt.Errorf("postgres adapter is not initialized")
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

func (a *Adapter) GetDataSourceType() models.DataSourceType {
	return models.DataSourcePostgres
}

func (a *Adapter) typeNameFromOID(oid uint32) string {
	if t, ok := a.typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return fmt.Sprintf("OID:%d", oid)
}

// normalizeValue turns pgx decoded values into plain Go values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		u := pgtype.UUID{Bytes: val, Valid: true}
		s, _ := u.Value()
		return s
	case []byte:
		return string(val)
	default:
		return val
	}
}

var _ datasource.DatabaseAdapter = (*Adapter)(nil)
