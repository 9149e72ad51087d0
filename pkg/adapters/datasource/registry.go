package datasource

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
)

// DatasourceAdapterInfo describes a compiled-in adapter.
type DatasourceAdapterInfo struct {
	Type        models.DataSourceType `json:"type"`         // "postgres", "sqlserver", "bigquery"
	DisplayName string                `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string                `json:"description"`
}

// DatasourceAdapterRegistration contains info plus a constructor for
// uninitialized adapters.
type DatasourceAdapterRegistration struct {
	Info    DatasourceAdapterInfo
	Factory func(logger *zap.Logger) DatabaseAdapter
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DataSourceType]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters ordered by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the constructor for a datasource type, or nil if the
// adapter was not compiled in.
func GetFactory(dsType models.DataSourceType) func(logger *zap.Logger) DatabaseAdapter {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType models.DataSourceType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// unregister removes a registration. Tests only.
func unregister(dsType models.DataSourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, dsType)
}
