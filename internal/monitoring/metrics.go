package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reqsync"

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	rateLimitBlocks      *prometheus.CounterVec

	// Workflow metrics
	syncOperationsTotal *prometheus.CounterVec

	// Provider metrics
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec

	// Event metrics
	eventsPublishedTotal *prometheus.CounterVec
	webhookEventsTotal   *prometheus.CounterVec
	busEventsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{registry: registry}

	m.initHTTPMetrics()
	m.initSyncMetrics()
	m.initProviderMetrics()
	m.initEventMetrics()

	m.registerMetrics()
	return m
}

// initHTTPMetrics initializes HTTP-related metrics
func (m *Metrics) initHTTPMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.rateLimitBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Total number of requests blocked by rate limiting",
		},
		[]string{"route"},
	)
}

// initSyncMetrics initializes workflow metrics
func (m *Metrics) initSyncMetrics() {
	m.syncOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Total number of sync workflow runs by outcome",
		},
		[]string{"operation", "outcome"},
	)
}

// initProviderMetrics initializes outbound provider metrics
func (m *Metrics) initProviderMetrics() {
	m.providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider API requests",
		},
		[]string{"provider", "operation", "status"},
	)

	m.providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation", "status"},
	)
}

// initEventMetrics initializes event bus and webhook metrics
func (m *Metrics) initEventMetrics() {
	m.eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published to the bus",
		},
		[]string{"outcome"},
	)

	m.webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of webhooks dispatched",
		},
		[]string{"route", "type", "action", "effect"},
	)

	m.busEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Total number of bus events handled",
		},
		[]string{"outcome"},
	)
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.rateLimitBlocks,
		m.syncOperationsTotal,
		m.providerRequestsTotal,
		m.providerRequestDuration,
		m.eventsPublishedTotal,
		m.webhookEventsTotal,
		m.busEventsTotal,
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimitBlock records a request rejected by the rate limiter
func (m *Metrics) RecordRateLimitBlock(route string) {
	m.rateLimitBlocks.WithLabelValues(route).Inc()
}

// RecordSyncOperation counts a sync workflow run
func (m *Metrics) RecordSyncOperation(operation, outcome string) {
	m.syncOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveProviderRequest records one provider API attempt. status 0 means
// the request never got a response.
func (m *Metrics) ObserveProviderRequest(provider, operation string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.providerRequestsTotal.WithLabelValues(provider, operation, code).Inc()
	m.providerRequestDuration.WithLabelValues(provider, operation, code).Observe(duration.Seconds())
}

// RecordEventPublished counts a publish attempt
func (m *Metrics) RecordEventPublished(outcome string) {
	m.eventsPublishedTotal.WithLabelValues(outcome).Inc()
}

// RecordWebhookEvent counts a dispatched webhook
func (m *Metrics) RecordWebhookEvent(route, eventType, action, effect string) {
	m.webhookEventsTotal.WithLabelValues(route, eventType, action, effect).Inc()
}

// RecordBusEvent counts a handled bus event
func (m *Metrics) RecordBusEvent(outcome string) {
	m.busEventsTotal.WithLabelValues(outcome).Inc()
}

// GetRegistry returns the Prometheus registry
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight requests. The
// route label is the mux path template so ids do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		rw := NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		m.RecordHTTPRequest(r.Method, RouteLabel(r), rw.StatusCode, time.Since(start))
	})
}

// RouteLabel returns the matched mux path template, or "unmatched"
func RouteLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
