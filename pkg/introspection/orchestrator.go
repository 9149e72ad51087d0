package introspection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// Source is the fetcher set a full introspection runs over. Listing methods
// take "" for an absent scope and return only context errors.
type Source interface {
	GetDatabases(ctx context.Context) ([]models.Database, error)
	GetSchemas(ctx context.Context, database string) ([]models.Schema, error)
	GetTables(ctx context.Context, database, schema string) ([]models.Table, error)
	GetColumns(ctx context.Context, database, schema, table string) ([]models.Column, error)
	GetViews(ctx context.Context, database, schema string) ([]models.View, error)
	ColumnStatisticsFor(ctx context.Context, database, schema, table string, cols []models.Column) ([]models.ColumnStatistics, error)
	GetDataSourceType() models.DataSourceType
	DataSourceName() string
}

// IndexSource is implemented by sources that can list indexes.
type IndexSource interface {
	GetIndexes(ctx context.Context, database, schema string) ([]models.Index, error)
}

// ForeignKeySource is implemented by sources that can list foreign keys.
type ForeignKeySource interface {
	GetForeignKeys(ctx context.Context, database, schema string) ([]models.ForeignKey, error)
}

// FullIntrospectionConfig tunes FullIntrospection.
type FullIntrospectionConfig struct {
	// StatisticsBatchSize is how many tables have statistics computed at once.
	// Batches run one after another.
	StatisticsBatchSize int
	SkipStatistics      bool
	Logger              *zap.Logger
	Tracer              trace.Tracer
	// Now stamps IntrospectedAt. Defaults to time.Now.
	Now func() time.Time
}

// ValidateOptions rejects filters that are present but empty.
func ValidateOptions(opts models.IntrospectionOptions) error {
	if opts.Databases != nil && len(opts.Databases) == 0 {
		return fmt.Errorf("%w: Database filter array is empty. Please provide at least one database name or remove the filter.", apperrors.ErrEmptyFilter)
	}
	if opts.Schemas != nil && len(opts.Schemas) == 0 {
		return fmt.Errorf("%w: Schema filter array is empty. Please provide at least one schema name or remove the filter.", apperrors.ErrEmptyFilter)
	}
	if opts.Tables != nil && len(opts.Tables) == 0 {
		return fmt.Errorf("%w: Table filter array is empty. Please provide at least one table name or remove the filter.", apperrors.ErrEmptyFilter)
	}
	return nil
}

// FullIntrospection reads every entity kind unscoped, in order, and narrows
// each by the filters and by the entities that survived before it. Only an
// empty filter or a context error fails the call.
func FullIntrospection(ctx context.Context, src Source, opts models.IntrospectionOptions, cfg FullIntrospectionConfig) (*models.DataSourceIntrospectionResult, error) {
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NoopTracer()
	}
	if cfg.StatisticsBatchSize <= 0 {
		cfg.StatisticsBatchSize = DefaultStatisticsBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger

	ctx, span := cfg.Tracer.Start(ctx, "introspection.full",
		trace.WithAttributes(
			attribute.String("datasource.name", src.DataSourceName()),
			attribute.String("datasource.type", string(src.GetDataSourceType())),
		))
	defer span.End()

	// 1. Databases
	allDatabases, err := phase(ctx, cfg.Tracer, "databases", src.GetDatabases)
	if err != nil {
		return nil, err
	}
	databases := allDatabases
	if opts.Databases != nil {
		warnUnmatched(logger, "database", opts.Databases, names(allDatabases, func(d models.Database) string { return d.Name }))
		databases = filterSlice(allDatabases, func(d models.Database) bool { return slices.Contains(opts.Databases, d.Name) })
	}
	dbSet := nameSet(databases, func(d models.Database) string { return d.Name })

	// 2. Schemas
	allSchemas, err := phase(ctx, cfg.Tracer, "schemas", func(ctx context.Context) ([]models.Schema, error) {
		return src.GetSchemas(ctx, "")
	})
	if err != nil {
		return nil, err
	}
	schemas := allSchemas
	if opts.Databases != nil {
		schemas = filterSlice(schemas, func(s models.Schema) bool { return dbSet[s.Database] })
	}
	if opts.Schemas != nil {
		warnUnmatched(logger, "schema", opts.Schemas, names(allSchemas, func(s models.Schema) string { return s.Name }))
		schemas = filterSlice(schemas, func(s models.Schema) bool { return slices.Contains(opts.Schemas, s.Name) })
	}
	schemaSet := make(map[[2]string]bool, len(schemas))
	for _, s := range schemas {
		schemaSet[[2]string{s.Database, s.Name}] = true
	}

	// 3. Tables
	allTables, err := phase(ctx, cfg.Tracer, "tables", func(ctx context.Context) ([]models.Table, error) {
		return src.GetTables(ctx, "", "")
	})
	if err != nil {
		return nil, err
	}
	tables := allTables
	if opts.Databases != nil {
		tables = filterSlice(tables, func(t models.Table) bool { return dbSet[t.Database] })
	}
	if opts.Schemas != nil {
		tables = filterSlice(tables, func(t models.Table) bool { return schemaSet[[2]string{t.Database, t.Schema}] })
	}
	if opts.Tables != nil {
		warnUnmatched(logger, "table", opts.Tables, names(allTables, func(t models.Table) string { return t.Name }))
		tables = filterSlice(tables, func(t models.Table) bool { return slices.Contains(opts.Tables, t.Name) })
	}
	tableSet := make(map[tableKey]bool, len(tables))
	for _, t := range tables {
		tableSet[keyOf(t)] = true
	}

	// 4. Columns
	allColumns, err := phase(ctx, cfg.Tracer, "columns", func(ctx context.Context) ([]models.Column, error) {
		return src.GetColumns(ctx, "", "", "")
	})
	if err != nil {
		return nil, err
	}
	columns := filterSlice(allColumns, func(c models.Column) bool {
		return tableSet[tableKey{database: c.Database, schema: c.Schema, table: c.Table}]
	})

	// 5. Views
	views, err := phase(ctx, cfg.Tracer, "views", func(ctx context.Context) ([]models.View, error) {
		return src.GetViews(ctx, "", "")
	})
	if err != nil {
		return nil, err
	}
	if opts.Databases != nil {
		views = filterSlice(views, func(v models.View) bool { return dbSet[v.Database] })
	}
	if opts.Schemas != nil {
		views = filterSlice(views, func(v models.View) bool { return schemaSet[[2]string{v.Database, v.Schema}] })
	}

	// A schema or table filter keeps only schemas that still hold a table or view.
	if opts.Schemas != nil || opts.Tables != nil {
		occupied := make(map[[2]string]bool, len(tables)+len(views))
		for _, t := range tables {
			occupied[[2]string{t.Database, t.Schema}] = true
		}
		for _, v := range views {
			occupied[[2]string{v.Database, v.Schema}] = true
		}
		schemas = filterSlice(schemas, func(s models.Schema) bool { return occupied[[2]string{s.Database, s.Name}] })
	}

	// Indexes and foreign keys follow the surviving tables.
	indexes := []models.Index{}
	if is, ok := src.(IndexSource); ok {
		all, err := phase(ctx, cfg.Tracer, "indexes", func(ctx context.Context) ([]models.Index, error) {
			return is.GetIndexes(ctx, "", "")
		})
		if err != nil {
			return nil, err
		}
		indexes = filterSlice(all, func(i models.Index) bool {
			return tableSet[tableKey{database: i.Database, schema: i.Schema, table: i.Table}]
		})
	}
	foreignKeys := []models.ForeignKey{}
	if fs, ok := src.(ForeignKeySource); ok {
		all, err := phase(ctx, cfg.Tracer, "foreign_keys", func(ctx context.Context) ([]models.ForeignKey, error) {
			return fs.GetForeignKeys(ctx, "", "")
		})
		if err != nil {
			return nil, err
		}
		foreignKeys = filterSlice(all, func(fk models.ForeignKey) bool {
			return tableSet[tableKey{database: fk.Database, schema: fk.Schema, table: fk.Table}]
		})
	}

	// 6. Column statistics
	if !cfg.SkipStatistics {
		sctx, sspan := cfg.Tracer.Start(ctx, "introspection.statistics",
			trace.WithAttributes(attribute.Int("tables", len(tables))))
		columns, err = attachStatistics(sctx, src, tables, columns, cfg.StatisticsBatchSize, logger)
		sspan.End()
		if err != nil {
			return nil, err
		}
	}

	// 7. A schema or table filter without a database filter drops databases
	// left without schemas.
	if (opts.Schemas != nil || opts.Tables != nil) && opts.Databases == nil {
		withSchemas := nameSet(schemas, func(s models.Schema) string { return s.Database })
		databases = filterSlice(databases, func(d models.Database) bool { return withSchemas[d.Name] })
	}

	result := &models.DataSourceIntrospectionResult{
		ID:             uuid.New(),
		DataSourceName: src.DataSourceName(),
		DataSourceType: src.GetDataSourceType(),
		Databases:      nonNilSlice(databases),
		Schemas:        nonNilSlice(schemas),
		Tables:         nonNilSlice(tables),
		Columns:        nonNilSlice(columns),
		Views:          nonNilSlice(views),
		Indexes:        indexes,
		ForeignKeys:    foreignKeys,
		IntrospectedAt: cfg.Now(),
	}
	logger.Info("Introspection complete",
		zap.Int("databases", len(result.Databases)),
		zap.Int("schemas", len(result.Schemas)),
		zap.Int("tables", len(result.Tables)),
		zap.Int("columns", len(result.Columns)),
		zap.Int("views", len(result.Views)))
	return result, nil
}

// phase runs one listing step inside its own span.
func phase[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) ([]T, error)) ([]T, error) {
	ctx, span := tracer.Start(ctx, "introspection."+name)
	defer span.End()
	items, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("introspect %s: %w", name, err)
	}
	span.SetAttributes(attribute.Int("count", len(items)))
	return items, nil
}

// attachStatistics computes column statistics table by table and copies them
// onto a copy of columns. Tables run batchSize at a time; the next batch
// starts only after the previous one finished. A table whose statistics fail
// keeps its columns unchanged.
func attachStatistics(ctx context.Context, src Source, tables []models.Table, columns []models.Column, batchSize int, logger *zap.Logger) ([]models.Column, error) {
	out := slices.Clone(columns)
	type columnKey struct {
		table  tableKey
		column string
	}
	index := make(map[columnKey]int, len(out))
	byTable := make(map[tableKey][]models.Column)
	for i, c := range out {
		tk := tableKey{database: c.Database, schema: c.Schema, table: c.Table}
		index[columnKey{table: tk, column: c.Name}] = i
		byTable[tk] = append(byTable[tk], c)
	}

	var mu sync.Mutex
	for start := 0; start < len(tables); start += batchSize {
		batch := tables[start:min(start+batchSize, len(tables))]
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range batch {
			tk := keyOf(t)
			cols := byTable[tk]
			if len(cols) == 0 {
				continue
			}
			g.Go(func() error {
				stats, err := src.ColumnStatisticsFor(gctx, t.Database, t.Schema, t.Name, cols)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					logger.Warn("Failed to get column statistics for table",
						zap.String("database", t.Database),
						zap.String("schema", t.Schema),
						zap.String("table", t.Name),
						zap.String("error", logging.SanitizeError(err)))
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				for _, s := range stats {
					if i, ok := index[columnKey{table: tk, column: s.ColumnName}]; ok {
						applyStatistics(&out[i], s)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// warnUnmatched logs filter entries that match nothing, with the closest
// existing name when there is one.
func warnUnmatched(logger *zap.Logger, kind string, filter, existing []string) {
	for _, want := range filter {
		if slices.Contains(existing, want) {
			continue
		}
		fields := []zap.Field{zap.String("kind", kind), zap.String("name", want)}
		if s := closestName(want, existing); s != "" {
			fields = append(fields, zap.String("did_you_mean", s))
		}
		logger.Warn("Filter matched nothing", fields...)
	}
}

// closestName returns the existing name nearest to want, or "" when nothing
// is within half of want's length.
func closestName(want string, existing []string) string {
	best, bestDist := "", -1
	for _, name := range existing {
		d := levenshtein.DistanceForStrings([]rune(want), []rune(name), levenshtein.DefaultOptions)
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist < 0 || bestDist > max(1, len([]rune(want))/2) {
		return ""
	}
	return best
}

func names[T any](items []T, name func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = name(it)
	}
	return out
}

func nameSet[T any](items []T, name func(T) string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[name(it)] = true
	}
	return set
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
