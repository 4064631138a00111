package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlet99/requisition-sync/internal/errors"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a specific component
type HealthCheck struct {
	Name        string         `json:"name"`
	Status      HealthStatus   `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// HealthReport represents the readiness report
type HealthReport struct {
	OverallStatus HealthStatus           `json:"overall_status"`
	Timestamp     time.Time              `json:"timestamp"`
	Version       string                 `json:"version"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	SystemInfo    map[string]any         `json:"system_info"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	CheckHealth(ctx context.Context) (HealthStatus, string, map[string]any, error)
}

// HealthMonitor manages health checks for all components
type HealthMonitor struct {
	logger    *slog.Logger
	checks    map[string]HealthChecker
	results   map[string]HealthCheck
	mu        sync.RWMutex
	version   string
	startTime time.Time
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger *slog.Logger, version string) *HealthMonitor {
	return &HealthMonitor{
		logger:    logger,
		checks:    make(map[string]HealthChecker),
		results:   make(map[string]HealthCheck),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker registers a health checker for a component
func (hm *HealthMonitor) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[name] = checker
	hm.logger.Debug("Registered health checker", "checker", name)
}

// RunHealthChecks runs all registered health checks
func (hm *HealthMonitor) RunHealthChecks(ctx context.Context) HealthReport {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	report := HealthReport{
		OverallStatus: HealthStatusHealthy,
		Timestamp:     time.Now().UTC(),
		Version:       hm.version,
		Uptime:        time.Since(hm.startTime).Round(time.Second).String(),
		Checks:        make(map[string]HealthCheck, len(hm.checks)),
		SystemInfo:    collectSystemInfo(),
	}

	for name, checker := range hm.checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		start := time.Now()
		status, message, details, err := checker.CheckHealth(checkCtx)
		cancel()

		check := HealthCheck{
			Name:        name,
			Status:      status,
			Message:     message,
			Details:     details,
			LastChecked: time.Now().UTC(),
			Duration:    time.Since(start),
		}
		if err != nil {
			check.Status = HealthStatusUnhealthy
			check.Message = fmt.Sprintf("Health check failed: %v", err)
			hm.logger.Warn("Health check failed", "checker", name, "error", err)
		}

		report.Checks[name] = check
		hm.results[name] = check

		switch {
		case check.Status == HealthStatusUnhealthy:
			report.OverallStatus = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && report.OverallStatus == HealthStatusHealthy:
			report.OverallStatus = HealthStatusDegraded
		}
	}

	return report
}

// GetHealthStatus returns the last result of a specific component
func (hm *HealthMonitor) GetHealthStatus(component string) (HealthCheck, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	check, exists := hm.results[component]
	return check, exists
}

// IsHealthy reports whether no component failed its last check
func (hm *HealthMonitor) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for _, check := range hm.results {
		if check.Status == HealthStatusUnhealthy {
			return false
		}
	}
	return true
}

// HandleReady serves the readiness report, 503 when a component is unhealthy
func (hm *HealthMonitor) HandleReady(w http.ResponseWriter, r *http.Request) {
	report := hm.RunHealthChecks(r.Context())

	status := http.StatusOK
	if report.OverallStatus == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	if err := errors.WriteJSON(w, status, report); err != nil {
		hm.logger.Error("Failed to encode health response", "error", err)
	}
}

func collectSystemInfo() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"goroutines":   runtime.NumGoroutine(),
		"num_cpu":      runtime.NumCPU(),
		"allocated_mb": m.Alloc / 1024 / 1024,
		"gc_count":     m.NumGC,
	}
}

// SimpleHealthChecker adapts a function to HealthChecker
type SimpleHealthChecker struct {
	name      string
	checkFunc func(ctx context.Context) (HealthStatus, string, map[string]any, error)
}

// NewSimpleHealthChecker creates a new simple health checker
func NewSimpleHealthChecker(name string, checkFunc func(ctx context.Context) (HealthStatus, string, map[string]any, error)) *SimpleHealthChecker {
	return &SimpleHealthChecker{
		name:      name,
		checkFunc: checkFunc,
	}
}

// CheckHealth performs the health check
func (s *SimpleHealthChecker) CheckHealth(ctx context.Context) (HealthStatus, string, map[string]any, error) {
	return s.checkFunc(ctx)
}

// Pinger is anything with a context-aware liveness probe, such as store.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthChecker checks the requisition store
type StoreHealthChecker struct {
	store  Pinger
	driver string
}

// NewStoreHealthChecker creates a store health checker
func NewStoreHealthChecker(store Pinger, driver string) *StoreHealthChecker {
	return &StoreHealthChecker{store: store, driver: driver}
}

// CheckHealth pings the store
func (c *StoreHealthChecker) CheckHealth(ctx context.Context) (HealthStatus, string, map[string]any, error) {
	details := map[string]any{"driver": c.driver}
	if err := c.store.Ping(ctx); err != nil {
		return HealthStatusUnhealthy, "Store is unreachable", details, err
	}
	return HealthStatusHealthy, "Store is healthy", details, nil
}

// RedisPinger is the part of a redis client the checker needs
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisHealthChecker checks the event bus connection. An unreachable bus
// degrades the service instead of failing it, since webhooks still work.
type RedisHealthChecker struct {
	client RedisPinger
	stream string
}

// NewRedisHealthChecker creates a redis health checker
func NewRedisHealthChecker(client RedisPinger, stream string) *RedisHealthChecker {
	return &RedisHealthChecker{client: client, stream: stream}
}

// CheckHealth pings redis
func (c *RedisHealthChecker) CheckHealth(ctx context.Context) (HealthStatus, string, map[string]any, error) {
	details := map[string]any{"stream": c.stream}
	if err := c.client.Ping(ctx).Err(); err != nil {
		details["error"] = err.Error()
		return HealthStatusDegraded, "Event bus is unreachable", details, nil
	}
	return HealthStatusHealthy, "Event bus is healthy", details, nil
}
