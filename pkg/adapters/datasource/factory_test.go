package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/retry"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

const testType models.DataSourceType = "factory_test"

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func registerMock(t *testing.T, adapter *mockAdapter) {
	t.Helper()
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: testType, DisplayName: "Factory Test"},
		Factory: func(logger *zap.Logger) DatabaseAdapter {
			return adapter
		},
	})
	t.Cleanup(func() { unregister(testType) })
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registerMock(t, newMockAdapter(testType))

	assert.True(t, IsRegistered(testType))
	assert.NotNil(t, GetFactory(testType))
	assert.False(t, IsRegistered("nope"))
	assert.Nil(t, GetFactory("nope"))

	var found bool
	for _, info := range RegisteredAdapters() {
		if info.Type == testType {
			found = true
			assert.Equal(t, "Factory Test", info.DisplayName)
		}
	}
	assert.True(t, found)
}

func TestFactory_NewAdapter_Unregistered(t *testing.T) {
	f := NewDatasourceAdapterFactory(zaptest.NewLogger(t))

	_, err := f.NewAdapter(context.Background(), "not_compiled_in", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedDatasourceType))
}

func TestFactory_NewAdapter_RetriesTransientInitFailures(t *testing.T) {
	adapter := newMockAdapter(testType)
	adapter.initErrs = []error{errTransient, errTransient}
	registerMock(t, adapter)

	f := NewDatasourceAdapterFactory(zaptest.NewLogger(t), WithRetryConfig(fastRetry()))
	got, err := f.NewAdapter(context.Background(), testType, map[string]any{"host": "x"})
	require.NoError(t, err)
	assert.Same(t, adapter, got)
	assert.Equal(t, int32(3), adapter.initCalls.Load())
}

func TestFactory_NewAdapter_PermanentFailureClosesAdapter(t *testing.T) {
	adapter := newMockAdapter(testType)
	adapter.initErrs = []error{errors.New("password authentication failed")}
	registerMock(t, adapter)

	f := NewDatasourceAdapterFactory(zaptest.NewLogger(t), WithRetryConfig(fastRetry()))
	_, err := f.NewAdapter(context.Background(), testType, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize factory_test adapter")
	assert.Equal(t, int32(1), adapter.initCalls.Load())
	assert.True(t, adapter.closed.Load())
}

func TestFactory_NewAdapter_WithInstruments(t *testing.T) {
	adapter := newMockAdapter(testType)
	registerMock(t, adapter)

	f := NewDatasourceAdapterFactory(nil, WithInstruments(telemetry.NoopInstruments()))
	got, err := f.NewAdapter(context.Background(), testType, nil)
	require.NoError(t, err)

	wrapped, ok := got.(*InstrumentedAdapter)
	require.True(t, ok)
	assert.Same(t, adapter, wrapped.Unwrap())

	res, err := got.Query(context.Background(), "SELECT 1", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, testType, got.GetDataSourceType())
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)

	ctx2, cancel2 := WithTimeout(context.Background(), time.Minute)
	defer cancel2()
	_, hasDeadline = ctx2.Deadline()
	assert.True(t, hasDeadline)
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "abc", normalizeValue([]byte("abc")))
	assert.Equal(t, "2024-03-01T12:00:00Z", normalizeValue(ts))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
	assert.Nil(t, normalizeValue(nil))
}

func TestUnwrap(t *testing.T) {
	inner := newMockAdapter(testType)
	wrapped := NewInstrumentedAdapter(NewInstrumentedAdapter(inner, nil), nil)

	assert.Same(t, inner, Unwrap(wrapped))
	assert.Same(t, inner, Unwrap(inner))
}
