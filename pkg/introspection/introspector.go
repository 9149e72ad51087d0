package introspection

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection/statsquery"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultCacheTTL              = 5 * time.Minute
	DefaultStatisticsBatchSize   = 20
	DefaultEnrichmentConcurrency = 8
)

// allKey is the cache key for unscoped listings.
const allKey = "*"

// Options tunes an Introspector.
type Options struct {
	// CacheTTL is how long unscoped listings are reused. Zero or negative
	// disables caching.
	CacheTTL time.Duration
	// QueryTimeout bounds each catalog and statistics query. Zero defers to ctx.
	QueryTimeout time.Duration
	// EnrichmentConcurrency caps concurrent per-database and per-dataset lookups.
	EnrichmentConcurrency int
	// StatisticsBatchSize is the number of tables whose statistics run together.
	StatisticsBatchSize int
	// SkipStatistics leaves columns without statistics in full introspection.
	SkipStatistics bool

	Instruments *telemetry.Instruments
	Tracer      trace.Tracer
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		CacheTTL:              DefaultCacheTTL,
		EnrichmentConcurrency: DefaultEnrichmentConcurrency,
		StatisticsBatchSize:   DefaultStatisticsBatchSize,
	}
}

// Introspector reads catalog metadata and column statistics from one data
// source. Unscoped listings are cached per entity kind for Options.CacheTTL;
// scoped listings are answered from a valid cache or fetched fresh. Catalog
// failures are logged and yield empty results.
type Introspector struct {
	name        string
	dsType      models.DataSourceType
	r           *runner
	cat         catalog
	builder     statsquery.Builder
	logger      *zap.Logger
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	opts        Options

	databases   *TTLCache[[]models.Database]
	schemas     *TTLCache[[]models.Schema]
	tables      *TTLCache[[]models.Table]
	columns     *TTLCache[[]models.Column]
	views       *TTLCache[[]models.View]
	indexes     *TTLCache[[]models.Index]
	foreignKeys *TTLCache[[]models.ForeignKey]
}

var _ Source = (*Introspector)(nil)

// New creates an Introspector over an initialized adapter.
func New(name string, adapter datasource.DatabaseAdapter, logger *zap.Logger, opts Options) (*Introspector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StatisticsBatchSize <= 0 {
		opts.StatisticsBatchSize = DefaultStatisticsBatchSize
	}
	if opts.EnrichmentConcurrency <= 0 {
		opts.EnrichmentConcurrency = DefaultEnrichmentConcurrency
	}
	if opts.Instruments == nil {
		opts.Instruments = telemetry.NoopInstruments()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer()
	}

	dsType := adapter.GetDataSourceType()
	builder, err := statsquery.For(dsType)
	if err != nil {
		return nil, err
	}

	logger = logger.Named("introspection").With(
		zap.String("datasource", name),
		zap.String("type", string(dsType)),
	)
	r := &runner{
		adapter:     adapter,
		logger:      logger,
		timeout:     opts.QueryTimeout,
		concurrency: opts.EnrichmentConcurrency,
	}

	cat, err := newCatalog(dsType, r, adapter)
	if err != nil {
		return nil, err
	}

	return &Introspector{
		name:        name,
		dsType:      dsType,
		r:           r,
		cat:         cat,
		builder:     builder,
		logger:      logger,
		instruments: opts.Instruments,
		tracer:      opts.Tracer,
		opts:        opts,
		databases:   NewTTLCache[[]models.Database](opts.CacheTTL),
		schemas:     NewTTLCache[[]models.Schema](opts.CacheTTL),
		tables:      NewTTLCache[[]models.Table](opts.CacheTTL),
		columns:     NewTTLCache[[]models.Column](opts.CacheTTL),
		views:       NewTTLCache[[]models.View](opts.CacheTTL),
		indexes:     NewTTLCache[[]models.Index](opts.CacheTTL),
		foreignKeys: NewTTLCache[[]models.ForeignKey](opts.CacheTTL),
	}, nil
}

func newCatalog(dsType models.DataSourceType, r *runner, adapter datasource.DatabaseAdapter) (catalog, error) {
	switch dsType {
	case models.DataSourcePostgres:
		return newPostgresCatalog(r), nil
	case models.DataSourceRedshift:
		return newRedshiftCatalog(r), nil
	case models.DataSourceSnowflake:
		return newSnowflakeCatalog(r), nil
	case models.DataSourceMySQL:
		return newMySQLCatalog(r), nil
	case models.DataSourceSQLServer:
		return newSQLServerCatalog(r), nil
	case models.DataSourceBigQuery:
		scoped, ok := datasource.Unwrap(adapter).(datasource.ProjectScopedAdapter)
		if !ok {
			return nil, fmt.Errorf("bigquery adapter does not expose its project")
		}
		return newBigQueryCatalog(r, scoped.ProjectID(), scoped.Location()), nil
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDatasourceType, dsType)
	}
}

// DataSourceName returns the configured name of the data source.
func (in *Introspector) DataSourceName() string {
	return in.name
}

// GetDataSourceType returns the engine of the data source.
func (in *Introspector) GetDataSourceType() models.DataSourceType {
	return in.dsType
}

// InvalidateCache drops every cached listing.
func (in *Introspector) InvalidateCache() {
	in.databases.Clear()
	in.schemas.Clear()
	in.tables.Clear()
	in.columns.Clear()
	in.views.Clear()
	in.indexes.Clear()
	in.foreignKeys.Clear()
}

// listing answers one Get* call. A valid unscoped cache entry is filtered in
// memory. Otherwise an unscoped call fills the cache and a scoped call
// fetches fresh without touching it. Fetch failures other than context
// errors are logged and degrade to an empty slice.
func listing[T any](ctx context.Context, in *Introspector, kind string, cache *TTLCache[[]T], scoped bool,
	fetch func(ctx context.Context) ([]T, error), keep func(T) bool) ([]T, error) {
	if all, ok := cache.Peek(allKey); ok {
		in.instruments.RecordCacheLookup(ctx, kind, true)
		return filterSlice(all, keep), nil
	}

	var (
		items []T
		hit   bool
		err   error
	)
	if scoped {
		items, err = fetch(ctx)
	} else {
		items, hit, err = cache.GetOrFetch(ctx, allKey, fetch)
	}
	in.instruments.RecordCacheLookup(ctx, kind, hit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		in.logger.Warn("Catalog query failed, returning no results",
			zap.String("kind", kind),
			zap.String("error", logging.SanitizeError(err)))
		return []T{}, nil
	}
	if items == nil {
		return []T{}, nil
	}
	if scoped {
		return items, nil
	}
	return slices.Clone(items), nil
}

func filterSlice[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// matches reports whether value satisfies an optional scope.
func matches(scope, value string) bool {
	return scope == "" || scope == value
}

// GetDatabases lists databases.
func (in *Introspector) GetDatabases(ctx context.Context) ([]models.Database, error) {
	return listing(ctx, in, "databases", in.databases, false,
		in.cat.listDatabases,
		func(models.Database) bool { return true })
}

// GetSchemas lists schemas, optionally within one database.
func (in *Introspector) GetSchemas(ctx context.Context, database string) ([]models.Schema, error) {
	return listing(ctx, in, "schemas", in.schemas, database != "",
		func(ctx context.Context) ([]models.Schema, error) { return in.cat.listSchemas(ctx, database) },
		func(s models.Schema) bool { return matches(database, s.Database) })
}

// GetTables lists tables with row counts and sizes where the engine reports them.
func (in *Introspector) GetTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	return listing(ctx, in, "tables", in.tables, database != "" || schema != "",
		func(ctx context.Context) ([]models.Table, error) { return in.fetchTables(ctx, database, schema) },
		func(t models.Table) bool { return matches(database, t.Database) && matches(schema, t.Schema) })
}

func (in *Introspector) fetchTables(ctx context.Context, database, schema string) ([]models.Table, error) {
	tables, err := in.cat.listTables(ctx, database, schema)
	if err != nil {
		return nil, err
	}
	sizer, ok := in.cat.(tableSizer)
	if !ok || len(tables) == 0 {
		return tables, nil
	}
	sizes, err := sizer.tableSizes(ctx, tables)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		in.logger.Warn("Could not read table sizes",
			zap.Int("tables", len(tables)),
			zap.String("error", logging.SanitizeError(err)))
		return tables, nil
	}
	for i := range tables {
		s, ok := sizes[keyOf(tables[i])]
		if !ok {
			continue
		}
		if tables[i].RowCount == nil {
			tables[i].RowCount = s.rowCount
		}
		if tables[i].SizeBytes == nil {
			tables[i].SizeBytes = s.sizeBytes
		}
		if tables[i].LastModified == nil {
			tables[i].LastModified = s.lastModified
		}
	}
	return tables, nil
}

// GetColumns lists columns at any combination of scopes.
func (in *Introspector) GetColumns(ctx context.Context, database, schema, table string) ([]models.Column, error) {
	return listing(ctx, in, "columns", in.columns, database != "" || schema != "" || table != "",
		func(ctx context.Context) ([]models.Column, error) {
			return in.cat.listColumns(ctx, database, schema, table)
		},
		func(c models.Column) bool {
			return matches(database, c.Database) && matches(schema, c.Schema) && matches(table, c.Table)
		})
}

// GetViews lists views with their stored definitions.
func (in *Introspector) GetViews(ctx context.Context, database, schema string) ([]models.View, error) {
	return listing(ctx, in, "views", in.views, database != "" || schema != "",
		func(ctx context.Context) ([]models.View, error) { return in.cat.listViews(ctx, database, schema) },
		func(v models.View) bool { return matches(database, v.Database) && matches(schema, v.Schema) })
}

// GetIndexes lists indexes. Engines without index metadata return none.
func (in *Introspector) GetIndexes(ctx context.Context, database, schema string) ([]models.Index, error) {
	lister, ok := in.cat.(indexLister)
	if !ok {
		return []models.Index{}, nil
	}
	return listing(ctx, in, "indexes", in.indexes, database != "" || schema != "",
		func(ctx context.Context) ([]models.Index, error) { return lister.listIndexes(ctx, database, schema) },
		func(i models.Index) bool { return matches(database, i.Database) && matches(schema, i.Schema) })
}

// GetForeignKeys lists foreign keys. Engines without them return none.
func (in *Introspector) GetForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error) {
	lister, ok := in.cat.(foreignKeyLister)
	if !ok {
		return []models.ForeignKey{}, nil
	}
	return listing(ctx, in, "foreign_keys", in.foreignKeys, database != "" || schema != "",
		func(ctx context.Context) ([]models.ForeignKey, error) {
			return lister.listForeignKeys(ctx, database, schema)
		},
		func(fk models.ForeignKey) bool { return matches(database, fk.Database) && matches(schema, fk.Schema) })
}

// GetTableStatistics returns table-level counters without column statistics.
func (in *Introspector) GetTableStatistics(ctx context.Context, database, schema, table string) (*models.TableStatistics, error) {
	stats, err := in.cat.tableStatistics(ctx, database, schema, table)
	if err != nil {
		return nil, fmt.Errorf("get table statistics for %s: %w",
			statsquery.TableRef{Database: database, Schema: schema, Table: table}, err)
	}
	return stats, nil
}

// GetFullIntrospection returns a filtered snapshot of the whole data source.
func (in *Introspector) GetFullIntrospection(ctx context.Context, opts models.IntrospectionOptions) (*models.DataSourceIntrospectionResult, error) {
	return FullIntrospection(ctx, in, opts, FullIntrospectionConfig{
		StatisticsBatchSize: in.opts.StatisticsBatchSize,
		SkipStatistics:      in.opts.SkipStatistics,
		Logger:              in.logger,
		Tracer:              in.tracer,
	})
}
