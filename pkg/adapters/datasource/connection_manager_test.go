package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

func newTestManager(t *testing.T, factory DatasourceAdapterFactory) *ConnectionManager {
	t.Helper()
	cm := NewConnectionManager(ConnectionManagerConfig{
		TTLMinutes:         5,
		HealthCheckTimeout: time.Second,
	}, factory, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = cm.Close() })
	return cm
}

func TestConnectionManager_Reuse(t *testing.T) {
	factory := &staticFactory{}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	a1, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)
	a2, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 1, factory.createdCount())
	assert.Equal(t, int32(1), a1.(*mockAdapter).testCalls.Load(), "reuse runs a health check")

	stats := cm.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByType["postgres"])
	assert.Equal(t, 5, stats.TTLMinutes)
}

func TestConnectionManager_DifferentNames(t *testing.T) {
	factory := &staticFactory{}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	a1, err := cm.GetOrCreateAdapter(ctx, "one", models.DataSourceMySQL, nil)
	require.NoError(t, err)
	a2, err := cm.GetOrCreateAdapter(ctx, "two", models.DataSourceSnowflake, nil)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
	stats := cm.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByType["mysql"])
	assert.Equal(t, 1, stats.ConnectionsByType["snowflake"])
}

func TestConnectionManager_UnhealthyAdapterIsReplaced(t *testing.T) {
	first := newMockAdapter(models.DataSourcePostgres)
	second := newMockAdapter(models.DataSourcePostgres)
	factory := &staticFactory{adapters: []*mockAdapter{first, second}}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	got, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)
	require.Same(t, first, got)

	first.setTestErr(errors.New("password authentication failed"))

	got, err = cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.True(t, first.closed.Load())
	assert.Equal(t, 2, factory.createdCount())
}

func TestConnectionManager_TypeChangeRecreates(t *testing.T) {
	factory := &staticFactory{}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	a1, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)
	a2, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourceRedshift, nil)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
	assert.True(t, a1.(*mockAdapter).closed.Load())
	assert.Equal(t, models.DataSourceRedshift, a2.GetDataSourceType())
}

func TestConnectionManager_FactoryError(t *testing.T) {
	cm := newTestManager(t, &staticFactory{err: errors.New("boom")})

	_, err := cm.GetOrCreateAdapter(context.Background(), "warehouse", models.DataSourceMySQL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create adapter for warehouse")
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestConnectionManager_Cleanup(t *testing.T) {
	factory := &staticFactory{}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	a, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourcePostgres, nil)
	require.NoError(t, err)

	cm.mu.RLock()
	managed := cm.connections["warehouse"]
	cm.mu.RUnlock()
	managed.mu.Lock()
	managed.lastUsed = time.Now().Add(-10 * time.Minute)
	managed.mu.Unlock()

	cm.performCleanup()

	assert.Equal(t, 0, cm.GetStats().TotalConnections)
	assert.True(t, a.(*mockAdapter).closed.Load())
}

func TestConnectionManager_Remove(t *testing.T) {
	cm := newTestManager(t, &staticFactory{})
	a, err := cm.GetOrCreateAdapter(context.Background(), "warehouse", models.DataSourceBigQuery, nil)
	require.NoError(t, err)

	cm.Remove("warehouse")
	cm.Remove("warehouse")

	assert.True(t, a.(*mockAdapter).closed.Load())
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestConnectionManager_CloseIsIdempotent(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, &staticFactory{}, nil)
	a, err := cm.GetOrCreateAdapter(context.Background(), "warehouse", models.DataSourceSQLServer, nil)
	require.NoError(t, err)

	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.True(t, a.(*mockAdapter).closed.Load())

	_, err = cm.GetOrCreateAdapter(context.Background(), "warehouse", models.DataSourceSQLServer, nil)
	assert.Error(t, err)
}

func TestConnectionManager_ConcurrentCreateSharesAdapter(t *testing.T) {
	factory := &staticFactory{}
	cm := newTestManager(t, factory)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]DatabaseAdapter, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := cm.GetOrCreateAdapter(ctx, "warehouse", models.DataSourceMySQL, nil)
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, factory.createdCount())
	for _, a := range results {
		assert.Same(t, results[0], a)
	}
}
