package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// InstrumentedAdapter records query count, latency and errors for the
// adapter it wraps.
type InstrumentedAdapter struct {
	DatabaseAdapter
	instruments *telemetry.Instruments
}

// NewInstrumentedAdapter wraps adapter with metric recording.
func NewInstrumentedAdapter(adapter DatabaseAdapter, inst *telemetry.Instruments) *InstrumentedAdapter {
	if inst == nil {
		inst = telemetry.NoopInstruments()
	}
	return &InstrumentedAdapter{DatabaseAdapter: adapter, instruments: inst}
}

func (a *InstrumentedAdapter) Query(ctx context.Context, sql string, params []any, maxRows int, timeout time.Duration) (*QueryResult, error) {
	start := time.Now()
	result, err := a.DatabaseAdapter.Query(ctx, sql, params, maxRows, timeout)
	ms := float64(time.Since(start).Microseconds()) / 1000
	a.instruments.RecordQuery(ctx, string(a.GetDataSourceType()), ms, err)
	return result, err
}

// Unwrap returns the wrapped adapter.
func (a *InstrumentedAdapter) Unwrap() DatabaseAdapter {
	return a.DatabaseAdapter
}

var _ DatabaseAdapter = (*InstrumentedAdapter)(nil)
