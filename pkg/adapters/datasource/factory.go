package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/retry"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// DatasourceAdapterFactory creates initialized adapters from the registry.
type DatasourceAdapterFactory interface {
	// NewAdapter constructs and initializes an adapter for dsType.
	NewAdapter(ctx context.Context, dsType models.DataSourceType, credentials map[string]any) (DatabaseAdapter, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	logger      *zap.Logger
	retryConfig *retry.Config
	instruments *telemetry.Instruments
}

// FactoryOption customizes the registry factory.
type FactoryOption func(*registryFactory)

// WithRetryConfig overrides the backoff used while initializing adapters.
func WithRetryConfig(cfg *retry.Config) FactoryOption {
	return func(f *registryFactory) { f.retryConfig = cfg }
}

// WithInstruments wraps every adapter so its queries are recorded.
func WithInstruments(inst *telemetry.Instruments) FactoryOption {
	return func(f *registryFactory) { f.instruments = inst }
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(logger *zap.Logger, opts ...FactoryOption) DatasourceAdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &registryFactory{
		logger:      logger,
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *registryFactory) NewAdapter(ctx context.Context, dsType models.DataSourceType, credentials map[string]any) (DatabaseAdapter, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedDatasourceType, dsType)
	}

	adapter := factory(f.logger.Named(string(dsType)))
	err := retry.DoIfRetryable(ctx, f.retryConfig, func() error {
		return adapter.Initialize(ctx, credentials)
	})
	if err != nil {
		f.logger.Warn("adapter initialization failed",
			zap.String("type", string(dsType)),
			zap.String("error", logging.SanitizeError(err)),
		)
		_ = adapter.Close()
		return nil, fmt.Errorf("initialize %s adapter: %w", dsType, err)
	}

	if f.instruments != nil {
		return NewInstrumentedAdapter(adapter, f.instruments), nil
	}
	return adapter, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

var _ DatasourceAdapterFactory = (*registryFactory)(nil)
