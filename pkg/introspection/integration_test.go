//go:build integration && (postgres || all_adapters)

package introspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/testhelpers"
)

func newWarehouseIntrospector(t *testing.T) *Introspector {
	t.Helper()
	db := testhelpers.GetWarehouseDB(t)

	logger := zaptest.NewLogger(t)
	adapter := postgres.NewAdapter(logger)
	require.NoError(t, adapter.Initialize(context.Background(), db.Credentials()))
	t.Cleanup(func() { _ = adapter.Close() })

	in, err := New("warehouse", adapter, logger, DefaultOptions())
	require.NoError(t, err)
	return in
}

func findTable(tables []models.Table, schema, name string) *models.Table {
	for i := range tables {
		if tables[i].Schema == schema && tables[i].Name == name {
			return &tables[i]
		}
	}
	return nil
}

func findColumn(cols []models.Column, table, name string) *models.Column {
	for i := range cols {
		if cols[i].Table == table && cols[i].Name == name {
			return &cols[i]
		}
	}
	return nil
}

func TestIntegration_PostgresFullIntrospection(t *testing.T) {
	in := newWarehouseIntrospector(t)
	ctx := context.Background()

	result, err := in.GetFullIntrospection(ctx, models.IntrospectionOptions{
		Databases: []string{"analytics"},
	})
	require.NoError(t, err)

	assert.Equal(t, "warehouse", result.DataSourceName)
	assert.Equal(t, models.DataSourcePostgres, result.DataSourceType)
	require.Len(t, result.Databases, 1)
	assert.Equal(t, "analytics", result.Databases[0].Name)

	schemaNames := make([]string, 0, len(result.Schemas))
	for _, s := range result.Schemas {
		schemaNames = append(schemaNames, s.Name)
	}
	assert.ElementsMatch(t, []string{"public", "reporting"}, schemaNames)

	orders := findTable(result.Tables, "public", "orders")
	require.NotNil(t, orders)
	assert.Equal(t, models.TableTypeTable, orders.Type)
	require.NotNil(t, orders.SizeBytes)
	assert.Positive(t, *orders.SizeBytes)
	assert.NotNil(t, findTable(result.Tables, "reporting", "daily_totals"))
	assert.Nil(t, findTable(result.Tables, "public", "open_orders"), "views are listed separately")

	status := findColumn(result.Columns, "orders", "status")
	require.NotNil(t, status)
	assert.False(t, status.IsNullable)
	assert.Equal(t, "Order lifecycle status", status.Comment)
	assert.Equal(t, models.StatisticsComputed, status.StatisticsStatus)
	require.NotNil(t, status.DistinctCount)
	assert.Equal(t, int64(3), *status.DistinctCount)
	require.NotNil(t, status.NullCount)
	assert.Equal(t, int64(0), *status.NullCount)

	name := findColumn(result.Columns, "customers", "name")
	require.NotNil(t, name)
	require.NotNil(t, name.NullCount)
	assert.Equal(t, int64(10), *name.NullCount)

	id := findColumn(result.Columns, "orders", "id")
	require.NotNil(t, id)
	require.NotNil(t, id.MinValue)
	require.NotNil(t, id.MaxValue)
	assert.Equal(t, "1", *id.MinValue)
	assert.Equal(t, "300", *id.MaxValue)

	attributes := findColumn(result.Columns, "orders", "attributes")
	require.NotNil(t, attributes)
	assert.Equal(t, models.StatisticsComputed, attributes.StatisticsStatus)
	assert.Nil(t, attributes.MinValue)

	viewKinds := make(map[string]bool)
	for _, v := range result.Views {
		viewKinds[v.Name] = v.IsMaterialized
	}
	assert.Equal(t, map[string]bool{"open_orders": false, "customer_totals": true}, viewKinds)

	require.Len(t, result.ForeignKeys, 1)
	fk := result.ForeignKeys[0]
	assert.Equal(t, "orders", fk.Table)
	assert.Equal(t, "customers", fk.ReferencedTable)
	assert.Equal(t, []string{"customer_id"}, fk.Columns)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, "CASCADE", fk.OnDelete)

	var sawUnique, sawPrimary bool
	for _, idx := range result.Indexes {
		if idx.Table == "customers" && idx.IsUnique && !idx.IsPrimary {
			sawUnique = true
			assert.Equal(t, []string{"email"}, idx.Columns)
		}
		if idx.Table == "orders" && idx.IsPrimary {
			sawPrimary = true
		}
	}
	assert.True(t, sawUnique, "unique index on customers.email")
	assert.True(t, sawPrimary, "primary key on orders")
}

func TestIntegration_PostgresTableFilter(t *testing.T) {
	in := newWarehouseIntrospector(t)

	result, err := in.GetFullIntrospection(context.Background(), models.IntrospectionOptions{
		Tables: []string{"customers"},
	})
	require.NoError(t, err)

	require.Len(t, result.Tables, 1)
	assert.Equal(t, "customers", result.Tables[0].Name)
	for _, c := range result.Columns {
		assert.Equal(t, "customers", c.Table)
	}
	assert.Empty(t, result.ForeignKeys, "the only foreign key belongs to orders")
	for _, s := range result.Schemas {
		assert.Contains(t, []string{"public", "reporting"}, s.Name, "reporting keeps its materialized view")
	}
}

func TestIntegration_PostgresTableStatistics(t *testing.T) {
	in := newWarehouseIntrospector(t)

	stats, err := in.GetTableStatistics(context.Background(), "analytics", "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", stats.Table)
	// n_live_tup is flushed asynchronously by the stats collector.
	assert.GreaterOrEqual(t, stats.RowCount, int64(0))
	require.NotNil(t, stats.SizeBytes)
	assert.Positive(t, *stats.SizeBytes)
}
