package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/ekaya-inc/ekaya-introspect"

// Instruments holds the metric instruments recorded by adapters and the
// introspection engine. Every method is attributed with the engine type.
type Instruments struct {
	QueryCount         metric.Int64Counter
	QueryDuration      metric.Float64Histogram
	QueryErrors        metric.Int64Counter
	StatisticsFailures metric.Int64Counter
	CacheHits          metric.Int64Counter
	CacheMisses        metric.Int64Counter
}

// NewInstruments creates instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

// NewInstrumentsFromMeter creates instruments from a specific meter, used by
// tests with an in-memory reader.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// The SDK returns noop instruments on error.
	queryCount, _ := meter.Int64Counter("introspect.query.count",
		metric.WithDescription("Warehouse queries issued"),
	)
	queryDuration, _ := meter.Float64Histogram("introspect.query.duration",
		metric.WithDescription("Warehouse query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("introspect.query.errors",
		metric.WithDescription("Warehouse queries that returned an error"),
	)
	statsFailures, _ := meter.Int64Counter("introspect.statistics.failures",
		metric.WithDescription("Tables whose column statistics query failed"),
	)
	cacheHits, _ := meter.Int64Counter("introspect.cache.hits",
		metric.WithDescription("Catalog lookups answered from the introspection cache"),
	)
	cacheMisses, _ := meter.Int64Counter("introspect.cache.misses",
		metric.WithDescription("Catalog lookups that went to the warehouse"),
	)

	return &Instruments{
		QueryCount:         queryCount,
		QueryDuration:      queryDuration,
		QueryErrors:        queryErrors,
		StatisticsFailures: statsFailures,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
	}
}

func engineAttr(engine string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("db.system", engine))
}

func (i *Instruments) RecordQuery(ctx context.Context, engine string, ms float64, err error) {
	i.QueryCount.Add(ctx, 1, engineAttr(engine))
	i.QueryDuration.Record(ctx, ms, engineAttr(engine))
	if err != nil {
		i.QueryErrors.Add(ctx, 1, engineAttr(engine))
	}
}

func (i *Instruments) IncrementStatisticsFailures(ctx context.Context, engine string) {
	i.StatisticsFailures.Add(ctx, 1, engineAttr(engine))
}

func (i *Instruments) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	opt := metric.WithAttributes(attribute.String("introspect.entity", kind))
	if hit {
		i.CacheHits.Add(ctx, 1, opt)
		return
	}
	i.CacheMisses.Add(ctx, 1, opt)
}
