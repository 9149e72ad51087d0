package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// mockAdapter is a DatabaseAdapter whose behaviour is set per test.
type mockAdapter struct {
	dsType models.DataSourceType

	initErrs   []error // returned in order by Initialize, then nil
	initCalls  atomic.Int32
	testErr    error
	testCalls  atomic.Int32
	queryErr   error
	queryCalls atomic.Int32
	closed     atomic.Bool

	mu sync.Mutex
}

func newMockAdapter(dsType models.DataSourceType) *mockAdapter {
	return &mockAdapter{dsType: dsType}
}

func (m *mockAdapter) Initialize(ctx context.Context, credentials map[string]any) error {
	n := int(m.initCalls.Add(1))
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= len(m.initErrs) {
		return m.initErrs[n-1]
	}
	return nil
}

func (m *mockAdapter) Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*QueryResult, error) {
	m.queryCalls.Add(1)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return &QueryResult{Rows: []map[string]any{{"one": 1}}, RowCount: 1}, nil
}

func (m *mockAdapter) TestConnection(ctx context.Context) error {
	m.testCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.testErr
}

func (m *mockAdapter) setTestErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testErr = err
}

func (m *mockAdapter) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockAdapter) GetDataSourceType() models.DataSourceType {
	return m.dsType
}

var _ DatabaseAdapter = (*mockAdapter)(nil)

// staticFactory hands out adapters from a queue and records requests.
type staticFactory struct {
	mu       sync.Mutex
	adapters []*mockAdapter
	created  int
	err      error
}

func (f *staticFactory) NewAdapter(ctx context.Context, dsType models.DataSourceType, credentials map[string]any) (DatabaseAdapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var a *mockAdapter
	if f.created < len(f.adapters) {
		a = f.adapters[f.created]
	} else {
		a = newMockAdapter(dsType)
	}
	f.created++
	return a, nil
}

func (f *staticFactory) ListTypes() []DatasourceAdapterInfo { return nil }

func (f *staticFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

var errTransient = errors.New("connection refused")
