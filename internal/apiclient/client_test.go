package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/requisition-sync/internal/errors"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (o *recordingObserver) ObserveProviderRequest(_, _ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Provider = "TestProvider"
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = "secret"
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestClient_Do_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "widget", in["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t-1","name":"widget"}`))
	}, Config{})

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/v1/things", "create thing", map[string]string{"name": "widget"}, &out))
	assert.Equal(t, "t-1", out.ID)
}

func TestClient_Do_NotFound(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"missing"}`, http.StatusNotFound)
	}, Config{RetryMaxAttempts: 3})

	err := client.Do(context.Background(), http.MethodGet, "/v1/things/x", "get thing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, errors.StateClosed, client.BreakerState())
}

func TestClient_Do_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	observer := &recordingObserver{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, Config{RetryMaxAttempts: 3}, WithObserver(observer))

	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/v1/things/x", "get thing", nil, nil))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []int{http.StatusServiceUnavailable, http.StatusOK}, observer.statuses)
}

func TestClient_Do_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}, Config{RetryMaxAttempts: 3})

	err := client.Do(context.Background(), http.MethodPut, "/v1/things/x", "update thing", map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIntegration))
	assert.Equal(t, http.StatusUnprocessableEntity, errors.ProviderStatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{
		RetryMaxAttempts: 1,
		CircuitBreaker:   &errors.CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour},
	})

	err := client.Do(context.Background(), http.MethodGet, "/v1/things/x", "get thing", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIntegration))
	assert.Equal(t, errors.StateOpen, client.BreakerState())

	err = client.Do(context.Background(), http.MethodGet, "/v1/things/x", "get thing", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCircuitBreakerOpen))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_InvalidResponseBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}, Config{})

	var out map[string]any
	err := client.Do(context.Background(), http.MethodGet, "/v1/things/x", "get thing", nil, &out)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIntegration))
}
