package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlet99/requisition-sync/internal/config"
	"github.com/atlet99/requisition-sync/internal/version"
)

const (
	serviceName = "requisition-sync"

	httpErrorThreshold = 400
)

// TracingConfig holds configuration for tracing
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	EnableConsole  bool
	SampleRate     float64
}

// TracingConfigFrom derives the tracing settings from the service config
func TracingConfigFrom(cfg *config.Config) *TracingConfig {
	return &TracingConfig{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		EnableConsole:  cfg.TracingConsole,
		SampleRate:     cfg.TracingSampleRate,
	}
}

// Tracer owns the otel tracer provider of the process
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// NewTracer installs an SDK tracer provider as the global provider. When
// tracing is disabled the global no-op provider is left in place and
// Shutdown does nothing.
func NewTracer(cfg *TracingConfig, logger *slog.Logger) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName), logger: logger}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(context.Background(), otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		if err != nil {
			logger.Warn("Failed to create OTLP exporter", "error", err)
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	if cfg.EnableConsole {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			logger.Warn("Failed to create console exporter", "error", err)
		} else {
			opts = append(opts, sdktrace.WithSyncer(exporter))
		}
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing enabled",
		"otlp_endpoint", cfg.OTLPEndpoint,
		"console", cfg.EnableConsole,
		"sample_rate", cfg.SampleRate)

	return &Tracer{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
		logger:   logger,
	}, nil
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string,
	opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Enabled reports whether spans are exported
func (t *Tracer) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes and stops the provider
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// TracingMiddleware creates a middleware that adds tracing to HTTP requests
func TracingMiddleware(tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.StartSpan(ctx, r.Method+" "+RouteLabel(r), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", RouteLabel(r)),
				attribute.String("http.user_agent", r.UserAgent()),
			)

			rw := NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(
				attribute.Int("http.status_code", rw.StatusCode),
				attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
			)

			if rw.StatusCode >= httpErrorThreshold {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", rw.StatusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}
