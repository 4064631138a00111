package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/atlet99/requisition-sync/internal/config"
	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/mockprovider"
	"github.com/atlet99/requisition-sync/internal/monitoring"
	"github.com/atlet99/requisition-sync/internal/providers"
	"github.com/atlet99/requisition-sync/internal/server"
	"github.com/atlet99/requisition-sync/internal/store"
	reqsync "github.com/atlet99/requisition-sync/internal/sync"
	"github.com/atlet99/requisition-sync/internal/version"
	"github.com/atlet99/requisition-sync/internal/webhook"
	"github.com/atlet99/requisition-sync/pkg/logger"
)

// loadConfig reads the environment and builds the process logger on w
func loadConfig(opts *RootOptions, w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return cfg, logger.NewLoggerWithWriter(w, level), nil
}

// Runtime is the wired object graph shared by serve, consume and event
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Tracer   *monitoring.Tracer
	Store    store.Store
	Redis    *redis.Client

	Policy     *config.PolicySource
	Providers  *providers.Registry
	Audit      *reqsync.AuditTrail
	Manager    *reqsync.Manager
	Dispatcher *webhook.Dispatcher
	Health     *monitoring.HealthMonitor

	MockClearCompany *mockprovider.Provider
	MockPaylocity    *mockprovider.Provider

	closers []server.Closer
}

// NewRuntime opens the store, connects the bus and wires the workflow.
// The store is migrated before it is handed to the workflow.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	rt.Metrics = monitoring.NewMetrics(rt.Registry)

	tracer, err := monitoring.NewTracer(monitoring.TracingConfigFrom(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	rt.Tracer = tracer

	st, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	rt.Store = st
	rt.closers = append(rt.closers, st)

	if err := store.Migrate(ctx, st); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	if cfg.EventBusName != "" {
		client, err := events.NewRedisClient(cfg.RedisURL)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, client)
	}

	rt.Policy = config.NewPolicySource(cfg.Policy)
	rt.Providers = providers.NewRegistry(cfg, cfg.CredentialSource(), rt.Metrics, log)
	rt.Audit = reqsync.NewAuditTrail(log, cfg.AuditMaxEvents)

	rt.Manager = reqsync.NewManager(cfg, reqsync.Dependencies{
		ATS:       rt.Providers.ATS(),
		Plans:     rt.Providers.Plans(),
		Store:     st,
		Publisher: rt.publisher(cfg.EventSource),
		Policy:    rt.Policy,
		Metrics:   rt.Metrics,
		Audit:     rt.Audit,
	}, log)
	rt.Dispatcher = webhook.NewDispatcher(rt.Manager, cfg.ATSEventSource, rt.Metrics, log)

	if cfg.UseMockProviders {
		rt.MockClearCompany = mockprovider.New(mockprovider.ClearCompanyResource,
			rt.publisher(mockprovider.ClearCompanyResource.Source), log,
			mockprovider.WithStatusPublisher(rt.publisher(cfg.ATSEventSource)))
		rt.MockPaylocity = mockprovider.New(mockprovider.PaylocityResource,
			rt.publisher(mockprovider.PaylocityResource.Source), log)
	}

	rt.Health = monitoring.NewHealthMonitor(log, version.Version)
	rt.Health.RegisterChecker("store", monitoring.NewStoreHealthChecker(st, cfg.StoreDriver))
	if rt.Redis != nil {
		rt.Health.RegisterChecker("event_bus", monitoring.NewRedisHealthChecker(rt.Redis, cfg.EventBusName))
	}

	return rt, nil
}

// publisher returns an instrumented bus publisher stamping source on every event
func (rt *Runtime) publisher(source string) events.Publisher {
	var client events.StreamWriter
	if rt.Redis != nil {
		client = rt.Redis
	}
	return events.Instrument(events.NewPublisher(client, rt.Config.EventBusName, source, rt.Logger), rt.Metrics)
}

// Consumer returns the bus consumer, or nil when no bus is configured
func (rt *Runtime) Consumer() *events.Consumer {
	if rt.Redis == nil {
		return nil
	}
	return events.NewConsumer(rt.Redis, events.ConsumerConfig{
		Stream: rt.Config.EventBusName,
		Group:  rt.Config.EventConsumerGroup,
		Name:   rt.Config.EventConsumerName,
	}, rt.Dispatcher, rt.Logger)
}

// ServerDependencies hands the runtime to the HTTP server, which takes over
// the tracer and closers on Shutdown.
func (rt *Runtime) ServerDependencies() server.Dependencies {
	return server.Dependencies{
		Requisitions:     rt.Manager,
		Events:           rt.Dispatcher,
		Audit:            rt.Audit,
		Health:           rt.Health,
		Metrics:          rt.Metrics,
		Tracer:           rt.Tracer,
		Consumer:         rt.Consumer(),
		MockClearCompany: rt.MockClearCompany,
		MockPaylocity:    rt.MockPaylocity,
		Closers:          rt.closers,
	}
}

// PolicyWatcher returns a watcher that reloads the sync policy into rt.Policy
func (rt *Runtime) PolicyWatcher() *config.PolicyWatcher {
	return config.NewPolicyWatcher(rt.Config, rt.Policy, rt.Logger)
}

// Close flushes the tracer and releases the store and bus connections
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Tracer != nil {
		if err := rt.Tracer.Shutdown(ctx); err != nil {
			rt.Logger.Error("Failed to shut down tracer", "error", err)
		}
	}
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			rt.Logger.Error("Failed to close resource", "error", err)
		}
	}
}
