package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultHealthCheckTimeout   = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes         int
	HealthCheckTimeout time.Duration
	CleanupInterval    time.Duration
}

// ConnectionManager keeps initialized adapters per datasource name,
// health-checks them on reuse and closes the ones idle longer than the TTL.
type ConnectionManager struct {
	mu                 sync.RWMutex
	connections        map[string]*ManagedConnection // key: datasource name
	factory            DatasourceAdapterFactory
	ttl                time.Duration
	healthCheckTimeout time.Duration
	cleanupInterval    time.Duration
	stopped            bool
	stopChan           chan struct{}
	logger             *zap.Logger
}

// ManagedConnection is a cached adapter with its last use time.
type ManagedConnection struct {
	adapter  DatabaseAdapter
	dsType   models.DataSourceType
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, factory DatasourceAdapterFactory, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		connections:        make(map[string]*ManagedConnection),
		factory:            factory,
		ttl:                time.Duration(cfg.TTLMinutes) * time.Minute,
		healthCheckTimeout: cfg.HealthCheckTimeout,
		cleanupInterval:    cfg.CleanupInterval,
		stopChan:           make(chan struct{}),
		logger:             logger.Named("connections"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// GetOrCreateAdapter returns the cached adapter for name, or creates one.
// A cached adapter that fails its health check is closed and replaced.
func (m *ConnectionManager) GetOrCreateAdapter(
	ctx context.Context,
	name string,
	dsType models.DataSourceType,
	credentials map[string]any,
) (DatabaseAdapter, error) {
	m.mu.RLock()
	managed, exists := m.connections[name]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists && managed.dsType == dsType {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, m.healthCheckTimeout)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.adapter.TestConnection(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("adapter unhealthy, recreating",
				zap.String("datasource", name),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.Remove(name)
			return m.createAdapter(ctx, name, dsType, credentials)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.adapter, nil
	}
	if exists {
		// type changed under the same name
		m.Remove(name)
	}

	return m.createAdapter(ctx, name, dsType, credentials)
}

// createAdapter builds a new adapter through the factory.
// Caller must NOT hold any locks.
func (m *ConnectionManager) createAdapter(
	ctx context.Context,
	name string,
	dsType models.DataSourceType,
	credentials map[string]any,
) (DatabaseAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[name]; exists && managed != nil && managed.dsType == dsType {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.adapter, nil
	}

	adapter, err := m.factory.NewAdapter(ctx, dsType, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter for %s: %w", name, err)
	}

	m.connections[name] = &ManagedConnection{
		adapter:  adapter,
		dsType:   dsType,
		lastUsed: time.Now(),
	}

	m.logger.Info("created adapter",
		zap.String("datasource", name),
		zap.String("type", string(dsType)),
		zap.Int("total", len(m.connections)),
	)
	return adapter, nil
}

// Remove closes and forgets the adapter cached under name.
// Caller must NOT hold m.mu lock.
func (m *ConnectionManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(name)
}

func (m *ConnectionManager) removeLocked(name string) {
	managed, exists := m.connections[name]
	if !exists || managed == nil {
		return
	}
	if err := managed.adapter.Close(); err != nil {
		m.logger.Warn("failed to close adapter",
			zap.String("datasource", name),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	delete(m.connections, name)
	m.logger.Debug("removed adapter", zap.String("datasource", name))
}

// cleanupExpiredConnections runs periodically until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes adapters that haven't been used within TTL.
// Lock order: manager lock then connection lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expired []string
	for name, managed := range m.connections {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expired = append(expired, name)
			m.logger.Debug("marking adapter for cleanup",
				zap.String("datasource", name),
				zap.Duration("idleTime", idle),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, name := range expired {
		m.removeLocked(name)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up idle adapters",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all adapters and stops the cleanup goroutine.
// This method is idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for name := range m.connections {
		m.removeLocked(name)
	}
	m.logger.Debug("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		stats.ConnectionsByType[string(managed.dsType)]++

		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
