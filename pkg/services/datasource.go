package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
	"github.com/ekaya-inc/ekaya-introspect/pkg/introspection"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/sqlguard"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// QueryRequest is a raw SQL passthrough. An empty DataSource resolves to the
// default data source.
type QueryRequest struct {
	DataSource string
	SQL        string
	Params     []any
	// MaxRows caps the returned rows; zero means no limit.
	MaxRows int
	Timeout time.Duration
}

// QueryResponse carries the rows of an Execute call plus limit metadata.
type QueryResponse struct {
	DataSource    string                 `json:"data_source"`
	Rows          []map[string]any       `json:"rows"`
	Fields        []datasource.FieldInfo `json:"fields"`
	RowCount      int                    `json:"row_count"`
	TotalRowCount *int64                 `json:"total_row_count,omitempty"`
	// Limited is set when MaxRows was given and more rows were available.
	Limited       bool          `json:"limited,omitempty"`
	MaxRows       int           `json:"max_rows,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// DatasourceService defines the interface for datasource operations.
type DatasourceService interface {
	// List returns every configured data source ordered by name.
	List() []models.Datasource

	// ListByType returns the configured data sources of one engine.
	ListByType(dsType models.DataSourceType) []models.Datasource

	// Get returns the named data source.
	Get(name string) (models.Datasource, error)

	// Resolve maps an optional name to a configured data source name:
	// the explicit name, then the configured default, then the only source.
	Resolve(name string) (string, error)

	// Execute runs raw SQL against a data source.
	Execute(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// Introspector returns the cached introspector for a data source,
	// creating its adapter on first use.
	Introspector(ctx context.Context, name string) (*introspection.Introspector, error)

	GetDatabases(ctx context.Context, name string) ([]models.Database, error)
	GetSchemas(ctx context.Context, name, database string) ([]models.Schema, error)
	GetTables(ctx context.Context, name, database, schema string) ([]models.Table, error)
	GetColumns(ctx context.Context, name, database, schema, table string) ([]models.Column, error)
	GetViews(ctx context.Context, name, database, schema string) ([]models.View, error)
	GetTableStatistics(ctx context.Context, name, database, schema, table string) (*models.TableStatistics, error)
	GetColumnStatistics(ctx context.Context, name, database, schema, table string) ([]models.ColumnStatistics, error)
	GetFullIntrospection(ctx context.Context, name string, opts models.IntrospectionOptions) (*models.DataSourceIntrospectionResult, error)

	// TestDataSource connects to the named data source and runs its health check.
	TestDataSource(ctx context.Context, name string) error

	// TestAllDataSources tests every data source. A nil value means healthy.
	TestAllDataSources(ctx context.Context) map[string]error

	// Add registers a new data source and verifies it can connect.
	Add(ctx context.Context, ds models.Datasource) (*models.Datasource, error)

	// Remove closes and forgets a data source.
	Remove(name string) error

	// Update replaces the type and credentials of a data source. The previous
	// configuration is restored when the new one cannot connect.
	Update(ctx context.Context, name string, dsType models.DataSourceType, credentials map[string]any) error

	// Close releases every adapter.
	Close() error
}

type introspectorEntry struct {
	adapter      datasource.DatabaseAdapter
	introspector *introspection.Introspector
}

// datasourceService implements DatasourceService.
type datasourceService struct {
	mu            sync.RWMutex
	sources       map[string]models.Datasource
	defaultName   string
	introspectors map[string]introspectorEntry

	connManager *datasource.ConnectionManager
	introOpts   introspection.Options
	logger      *zap.Logger
}

// NewDatasourceService creates a new datasource service with dependencies.
func NewDatasourceService(
	cfg *config.Config,
	adapterFactory datasource.DatasourceAdapterFactory,
	instruments *telemetry.Instruments,
	logger *zap.Logger,
) (DatasourceService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("datasources")

	sources := make(map[string]models.Datasource, len(cfg.Datasources))
	for _, entry := range cfg.Datasources {
		dsType, err := models.ParseDataSourceType(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", entry.Name, err)
		}
		sources[entry.Name] = models.Datasource{
			ID:          uuid.New(),
			Name:        entry.Name,
			Type:        dsType,
			Credentials: entry.Credentials,
		}
	}

	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:         cfg.Datasource.ConnectionTTLMinutes,
		HealthCheckTimeout: cfg.Datasource.HealthCheckTimeout,
	}, adapterFactory, logger)

	return &datasourceService{
		sources:       sources,
		defaultName:   cfg.DefaultDatasource,
		introspectors: make(map[string]introspectorEntry),
		connManager:   connManager,
		introOpts:     IntrospectionOptions(cfg.Introspection, instruments),
		logger:        logger,
	}, nil
}

// IntrospectionOptions maps configuration onto introspector tuning.
func IntrospectionOptions(cfg config.IntrospectionConfig, instruments *telemetry.Instruments) introspection.Options {
	return introspection.Options{
		CacheTTL:              cfg.CacheTTL,
		QueryTimeout:          cfg.QueryTimeout,
		EnrichmentConcurrency: cfg.EnrichmentConcurrency,
		StatisticsBatchSize:   cfg.StatisticsBatchSize,
		SkipStatistics:        cfg.SkipStatistics,
		Instruments:           instruments,
		Tracer:                telemetry.Tracer(),
	}
}

func (s *datasourceService) List() []models.Datasource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(models.Datasource) bool { return true })
}

func (s *datasourceService) ListByType(dsType models.DataSourceType) []models.Datasource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(ds models.Datasource) bool { return ds.Type == dsType })
}

func (s *datasourceService) sortedLocked(keep func(models.Datasource) bool) []models.Datasource {
	out := make([]models.Datasource, 0, len(s.sources))
	for _, name := range slices.Sorted(maps.Keys(s.sources)) {
		if ds := s.sources[name]; keep(ds) {
			out = append(out, ds)
		}
	}
	return out
}

func (s *datasourceService) Get(name string) (models.Datasource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.sources[name]
	if !ok {
		return models.Datasource{}, fmt.Errorf("datasource %q: %w", name, apperrors.ErrNotFound)
	}
	return ds, nil
}

func (s *datasourceService) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name != "" {
		if _, ok := s.sources[name]; !ok {
			return "", fmt.Errorf("datasource %q: %w", name, apperrors.ErrNotFound)
		}
		return name, nil
	}
	if s.defaultName != "" {
		if _, ok := s.sources[s.defaultName]; !ok {
			return "", fmt.Errorf("default datasource %q: %w", s.defaultName, apperrors.ErrNotFound)
		}
		return s.defaultName, nil
	}
	switch len(s.sources) {
	case 0:
		return "", fmt.Errorf("no datasources configured: %w", apperrors.ErrNoDefaultDatasource)
	case 1:
		for only := range s.sources {
			return only, nil
		}
	}
	return "", fmt.Errorf("multiple datasources configured, name one: %w", apperrors.ErrNoDefaultDatasource)
}

// adapter returns the managed adapter for a resolved name.
func (s *datasourceService) adapter(ctx context.Context, name string) (datasource.DatabaseAdapter, error) {
	ds, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	adapter, err := s.connManager.GetOrCreateAdapter(ctx, ds.Name, ds.Type, ds.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	return adapter, nil
}

func (s *datasourceService) Execute(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	name, err := s.Resolve(req.DataSource)
	if err != nil {
		return nil, err
	}

	query, err := sqlguard.Normalize(req.SQL)
	if err != nil {
		return nil, err
	}
	if err := sqlguard.CheckParams(req.Params); err != nil {
		s.logger.Warn("Rejected query parameters",
			zap.String("datasource", name),
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Error(err),
		)
		return nil, err
	}

	adapter, err := s.adapter(ctx, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := adapter.Query(ctx, query, req.Params, req.MaxRows, req.Timeout)
	if err != nil {
		s.logger.Warn("Query failed",
			zap.String("datasource", name),
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("execute on %s: %w", name, err)
	}

	resp := &QueryResponse{
		DataSource:    name,
		Rows:          result.Rows,
		Fields:        result.Fields,
		RowCount:      result.RowCount,
		TotalRowCount: result.TotalRowCount,
		ExecutionTime: time.Since(start),
	}
	if req.MaxRows > 0 {
		resp.Limited = result.HasMoreRows
		resp.MaxRows = req.MaxRows
	}
	return resp, nil
}

func (s *datasourceService) Introspector(ctx context.Context, name string) (*introspection.Introspector, error) {
	name, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapter(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The connection manager replaces idle or unhealthy adapters, so the
	// introspector is rebuilt whenever its adapter changed.
	if entry, ok := s.introspectors[name]; ok && entry.adapter == adapter {
		return entry.introspector, nil
	}
	in, err := introspection.New(name, adapter, s.logger, s.introOpts)
	if err != nil {
		return nil, fmt.Errorf("create introspector for %s: %w", name, err)
	}
	s.introspectors[name] = introspectorEntry{adapter: adapter, introspector: in}
	return in, nil
}

func (s *datasourceService) GetDatabases(ctx context.Context, name string) ([]models.Database, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetDatabases(ctx)
}

func (s *datasourceService) GetSchemas(ctx context.Context, name, database string) ([]models.Schema, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetSchemas(ctx, database)
}

func (s *datasourceService) GetTables(ctx context.Context, name, database, schema string) ([]models.Table, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetTables(ctx, database, schema)
}

func (s *datasourceService) GetColumns(ctx context.Context, name, database, schema, table string) ([]models.Column, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetColumns(ctx, database, schema, table)
}

func (s *datasourceService) GetViews(ctx context.Context, name, database, schema string) ([]models.View, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetViews(ctx, database, schema)
}

func (s *datasourceService) GetTableStatistics(ctx context.Context, name, database, schema, table string) (*models.TableStatistics, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetTableStatistics(ctx, database, schema, table)
}

func (s *datasourceService) GetColumnStatistics(ctx context.Context, name, database, schema, table string) ([]models.ColumnStatistics, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetColumnStatistics(ctx, database, schema, table)
}

func (s *datasourceService) GetFullIntrospection(ctx context.Context, name string, opts models.IntrospectionOptions) (*models.DataSourceIntrospectionResult, error) {
	in, err := s.Introspector(ctx, name)
	if err != nil {
		return nil, err
	}
	return in.GetFullIntrospection(ctx, opts)
}

func (s *datasourceService) TestDataSource(ctx context.Context, name string) error {
	adapter, err := s.adapter(ctx, name)
	if err != nil {
		return err
	}
	if err := adapter.TestConnection(ctx); err != nil {
		return fmt.Errorf("connection test failed for %s: %w", name, err)
	}
	s.logger.Info("Connection test successful", zap.String("datasource", name))
	return nil
}

func (s *datasourceService) TestAllDataSources(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, ds := range s.List() {
		results[ds.Name] = s.TestDataSource(ctx, ds.Name)
	}
	return results
}

func (s *datasourceService) Add(ctx context.Context, ds models.Datasource) (*models.Datasource, error) {
	if ds.Name == "" {
		return nil, fmt.Errorf("datasource name is required")
	}
	if _, err := models.ParseDataSourceType(string(ds.Type)); err != nil {
		return nil, err
	}
	if ds.Credentials == nil {
		ds.Credentials = make(map[string]any)
	}
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}

	s.mu.Lock()
	if _, exists := s.sources[ds.Name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("datasource %q: %w", ds.Name, apperrors.ErrConflict)
	}
	s.sources[ds.Name] = ds
	s.mu.Unlock()

	if _, err := s.adapter(ctx, ds.Name); err != nil {
		s.mu.Lock()
		delete(s.sources, ds.Name)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to add datasource %s: %w", ds.Name, err)
	}

	s.logger.Info("Added datasource",
		zap.String("id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("type", string(ds.Type)),
	)
	return &ds, nil
}

func (s *datasourceService) Remove(name string) error {
	s.mu.Lock()
	if _, ok := s.sources[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("datasource %q: %w", name, apperrors.ErrNotFound)
	}
	delete(s.sources, name)
	delete(s.introspectors, name)
	if s.defaultName == name {
		s.defaultName = ""
	}
	s.mu.Unlock()

	s.connManager.Remove(name)
	s.logger.Info("Removed datasource", zap.String("name", name))
	return nil
}

func (s *datasourceService) Update(ctx context.Context, name string, dsType models.DataSourceType, credentials map[string]any) error {
	if _, err := models.ParseDataSourceType(string(dsType)); err != nil {
		return err
	}

	s.mu.Lock()
	previous, ok := s.sources[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("datasource %q: %w", name, apperrors.ErrNotFound)
	}
	updated := previous
	updated.Type = dsType
	if credentials != nil {
		updated.Credentials = credentials
	}
	s.sources[name] = updated
	delete(s.introspectors, name)
	s.mu.Unlock()

	s.connManager.Remove(name)

	if _, err := s.adapter(ctx, name); err != nil {
		s.mu.Lock()
		s.sources[name] = previous
		s.mu.Unlock()
		return fmt.Errorf("failed to update datasource %s: %w", name, err)
	}

	s.logger.Info("Updated datasource",
		zap.String("name", name),
		zap.String("type", string(dsType)),
	)
	return nil
}

func (s *datasourceService) Close() error {
	s.mu.Lock()
	clear(s.introspectors)
	s.mu.Unlock()
	return s.connManager.Close()
}

// Ensure datasourceService implements DatasourceService at compile time.
var _ DatasourceService = (*datasourceService)(nil)
