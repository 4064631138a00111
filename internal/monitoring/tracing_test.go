package monitoring

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/atlet99/requisition-sync/internal/config"
)

func TestTracingConfigFrom(t *testing.T) {
	cfg := &config.Config{
		TracingEnabled:    true,
		OTLPEndpoint:      "collector:4318",
		TracingSampleRate: 0.5,
		Environment:       "staging",
	}

	tc := TracingConfigFrom(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "requisition-sync", tc.ServiceName)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
	assert.InDelta(t, 0.5, tc.SampleRate, 0.0001)
	assert.Equal(t, "staging", tc.Environment)
}

func TestNewTracer_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	tracer, err := NewTracer(&TracingConfig{ServiceName: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.False(t, tracer.Enabled())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	tracer, err := NewTracer(&TracingConfig{ServiceName: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
