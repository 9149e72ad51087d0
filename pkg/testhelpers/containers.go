package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// WarehouseImage is the PostgreSQL image used as a stand-in warehouse.
const WarehouseImage = "postgres:16-alpine"

const (
	warehouseDatabase = "analytics"
	warehouseUser     = "ekaya"
	warehousePassword = "test_password"
)

// WarehouseSchema is loaded into the shared container once. It covers the
// shapes introspection has to handle: a foreign key, a unique index, a plain
// view, a materialized view, a JSON column and a second schema.
const WarehouseSchema = `
	CREATE TABLE customers (
		id    SERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name  TEXT
	);
	COMMENT ON TABLE customers IS 'Registered customers';

	CREATE TABLE orders (
		id          SERIAL PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		status      VARCHAR(20) NOT NULL,
		total       NUMERIC(10,2) NOT NULL DEFAULT 0,
		attributes  JSONB,
		created_at  TIMESTAMP NOT NULL DEFAULT now()
	);
	CREATE INDEX idx_orders_customer ON orders(customer_id);
	COMMENT ON COLUMN orders.status IS 'Order lifecycle status';

	CREATE SCHEMA reporting;
	CREATE TABLE reporting.daily_totals (
		day   DATE PRIMARY KEY,
		total NUMERIC(12,2)
	);

	CREATE VIEW open_orders AS SELECT id, customer_id FROM orders WHERE status = 'new';
	CREATE MATERIALIZED VIEW reporting.customer_totals AS
		SELECT customer_id, SUM(total) AS total FROM orders GROUP BY customer_id;

	INSERT INTO customers (email, name)
	SELECT 'user' || i || '@example.com', CASE WHEN i % 4 = 0 THEN NULL ELSE 'Customer ' || i END
	FROM generate_series(1, 40) AS i;

	INSERT INTO orders (customer_id, status, total, attributes, created_at)
	SELECT
		(i % 40) + 1,
		CASE (i % 3) WHEN 0 THEN 'new' WHEN 1 THEN 'paid' ELSE 'shipped' END,
		(i * 1.5)::numeric(10,2),
		jsonb_build_object('channel', CASE WHEN i % 2 = 0 THEN 'web' ELSE 'store' END),
		now() - (i || ' hours')::interval
	FROM generate_series(1, 300) AS i;

	REFRESH MATERIALIZED VIEW reporting.customer_totals;
	ANALYZE;
`

// WarehouseDB holds a shared PostgreSQL container loaded with WarehouseSchema.
type WarehouseDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedWarehouse     *WarehouseDB
	sharedWarehouseOnce sync.Once
	sharedWarehouseErr  error
)

// GetWarehouseDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetWarehouseDB(t *testing.T) *WarehouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedWarehouseOnce.Do(func() {
		sharedWarehouse, sharedWarehouseErr = setupWarehouseDB()
	})

	if sharedWarehouseErr != nil {
		t.Fatalf("Failed to setup warehouse database: %v", sharedWarehouseErr)
	}

	return sharedWarehouse
}

// Credentials returns the adapter credentials for the shared container.
func (w *WarehouseDB) Credentials() map[string]any {
	return map[string]any{
		"host":     w.Host,
		"port":     w.Port,
		"user":     warehouseUser,
		"password": warehousePassword,
		"database": warehouseDatabase,
		"ssl_mode": "disable",
	}
}

func setupWarehouseDB() (*WarehouseDB, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		WarehouseImage,
		tcpostgres.WithDatabase(warehouseDatabase),
		tcpostgres.WithUsername(warehouseUser),
		tcpostgres.WithPassword(warehousePassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start warehouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to parse container port %q: %w", port.Port(), err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, WarehouseSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to load warehouse schema: %w", err)
	}

	return &WarehouseDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      portNum,
	}, nil
}
