// Package server provides the HTTP surface of the requisition sync service.
// It serves the requisition API, provider webhooks, the bus entry point and
// health, metrics and audit endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/atlet99/requisition-sync/internal/config"
	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/mockprovider"
	"github.com/atlet99/requisition-sync/internal/monitoring"
	"github.com/atlet99/requisition-sync/internal/requisition"
	reqsync "github.com/atlet99/requisition-sync/internal/sync"
	"github.com/atlet99/requisition-sync/internal/version"
	"github.com/atlet99/requisition-sync/internal/webhook"
)

const (
	// Server timeout constants
	readHeaderTimeout = 30 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 90 * time.Second
	idleTimeout       = 120 * time.Second

	maxBodyBytes = 1 << 20
)

// RequisitionService runs the create, update and read flows
type RequisitionService interface {
	Create(ctx context.Context, input *requisition.Requisition) (*requisition.Requisition, error)
	Update(ctx context.Context, id string, patch *requisition.Patch) (*requisition.Requisition, error)
	Get(ctx context.Context, id string) (*requisition.Requisition, error)
}

// EventHandler applies webhooks and bus events
type EventHandler interface {
	HandleWebhook(ctx context.Context, route webhook.Route, event *webhook.Event) (webhook.Result, error)
	HandleBusEvent(ctx context.Context, event events.BusEvent) events.Ack
}

// Closer is released on Shutdown
type Closer interface {
	Close() error
}

// Dependencies are the collaborators a Server routes to. Requisitions and
// Events are required; the rest are optional.
type Dependencies struct {
	Requisitions RequisitionService
	Events       EventHandler
	Audit        *reqsync.AuditTrail
	Health       *monitoring.HealthMonitor
	Metrics      *monitoring.Metrics
	Tracer       *monitoring.Tracer
	// Consumer runs alongside the HTTP server when set
	Consumer *events.Consumer
	// MockClearCompany and MockPaylocity are mounted under /mock when set
	MockClearCompany *mockprovider.Provider
	MockPaylocity    *mockprovider.Provider
	// Closers are released in order after the HTTP server stops
	Closers []Closer
}

// Server represents the main application server
type Server struct {
	*http.Server
	config      *config.Config
	deps        Dependencies
	logger      *slog.Logger
	errHandler  *errors.Handler
	rateLimiter *HTTPRateLimiter
	router      *mux.Router

	mu             sync.Mutex
	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
	shutdownOnce   sync.Once
}

// New creates a server whose metrics live on a fresh registry unless deps
// already carries Metrics.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	return NewWithRegistry(cfg, deps, logger, prometheus.NewRegistry())
}

// NewWithRegistry creates a server, registering metrics on registry when
// deps.Metrics is nil.
func NewWithRegistry(cfg *config.Config, deps Dependencies, logger *slog.Logger, registry *prometheus.Registry) *Server {
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics(registry)
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealthMonitor(logger, version.Version)
	}
	if deps.Audit == nil {
		deps.Audit = reqsync.NewAuditTrail(logger, cfg.AuditMaxEvents)
	}

	s := &Server{
		config:     cfg,
		deps:       deps,
		logger:     logger,
		errHandler: errors.NewHandler(logger),
		rateLimiter: NewHTTPRateLimiter(&RateLimiterConfig{
			DefaultRate:  cfg.RateLimitRPS,
			DefaultBurst: cfg.RateLimitBurst,
			PerIP:        true,
			PerEndpoint:  true,
		}),
	}
	s.router = s.routes()

	s.Server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler().Handler(s.router),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func corsHandler() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
}

// routes builds the router. Middleware runs recovery first, then tracing,
// logging and metrics, then the rate limit.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	r.Use(s.errHandler.RecoverMiddleware)
	if s.deps.Tracer != nil {
		r.Use(monitoring.TracingMiddleware(s.deps.Tracer))
	}
	r.Use(s.loggingMiddleware)
	r.Use(s.deps.Metrics.Middleware)

	// Probes and metrics are not rate limited
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.deps.Health.HandleReady).Methods(http.MethodGet)
	if s.config.MetricsEnabled {
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(s.rateLimiter, s.errHandler, s.deps.Metrics.RecordRateLimitBlock))
	api.Use(limitBody)

	api.HandleFunc("/requisitions", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/requisitions/{id}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/requisitions/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/webhooks/"+string(webhook.RouteRequisitionStatus), s.webhookHandler(webhook.RouteRequisitionStatus)).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/"+string(webhook.RouteCandidateStatus), s.webhookHandler(webhook.RouteCandidateStatus)).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleBusEvent).Methods(http.MethodPost)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	api.HandleFunc("/audit/stats", s.handleAuditStats).Methods(http.MethodGet)

	if s.deps.MockClearCompany != nil && s.deps.MockPaylocity != nil {
		mockprovider.Mount(api, s.deps.MockClearCompany, s.deps.MockPaylocity)
		s.logger.Info("Mock providers mounted", "path", "/mock")
	}

	return r
}

// GetRateLimiter returns the rate limiter instance
func (s *Server) GetRateLimiter() *HTTPRateLimiter {
	return s.rateLimiter
}

// Start starts the bus consumer, if any, and serves HTTP until Shutdown
func (s *Server) Start() error {
	if s.deps.Consumer != nil {
		s.startConsumer()
	}

	s.logger.Info("Starting HTTP server", "port", s.config.Port)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

func (s *Server) startConsumer() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.consumerCancel = cancel
	s.consumerDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.deps.Consumer.Run(ctx); err != nil {
			s.logger.Error("Event consumer stopped", "error", err)
		}
	}()
}

// Shutdown stops accepting requests, stops the consumer and releases the
// closers. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)

		s.mu.Lock()
		cancel, done := s.consumerCancel, s.consumerDone
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				s.logger.Warn("Event consumer did not stop before the shutdown deadline")
			}
		}

		if s.deps.Tracer != nil {
			if tErr := s.deps.Tracer.Shutdown(ctx); tErr != nil {
				s.logger.Error("Failed to shut down tracer", "error", tErr)
			}
		}

		for _, c := range s.deps.Closers {
			if cErr := c.Close(); cErr != nil {
				s.logger.Error("Failed to close resource", "error", cErr)
			}
		}
	})
	return err
}
