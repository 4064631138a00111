package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *ServiceError
		expected int
	}{
		{"validation", NewValidationError("bad"), http.StatusBadRequest},
		{"not found", NewNotFoundError("missing"), http.StatusNotFound},
		{"authentication", NewAuthenticationError("denied"), http.StatusUnauthorized},
		{"integration", NewIntegrationError("provider down", nil), http.StatusInternalServerError},
		{"rate limited", NewError(ErrCodeRateLimited).Build(), http.StatusTooManyRequests},
		{"circuit open", NewError(ErrCodeCircuitBreakerOpen).Build(), http.StatusServiceUnavailable},
		{"status override", NewError(ErrCodeIntegration).WithStatusCode(http.StatusBadGateway).Build(), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.HTTPStatusCode())
		})
	}
}

func TestServiceError_Defaults(t *testing.T) {
	err := NewValidationError("Invalid request body", "title is required")

	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, CategoryClientError, err.Category)
	assert.Equal(t, SeverityLow, err.Severity)
	assert.Equal(t, "title is required", err.Details)
	assert.True(t, err.IsClientError())
	assert.False(t, err.IsRetryable())
}

func TestAsAndIsCode(t *testing.T) {
	inner := NewNotFoundError("Requisition not found")
	wrapped := fmt.Errorf("failed to resolve requisition: %w", inner)

	se, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, se)
	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeValidation))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeNotFound))
}

func TestProviderAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ProviderAPIError("ClearCompany", "create requisition", tt.status, "body")
			assert.Equal(t, ErrCodeIntegration, err.Code)
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Equal(t, tt.status, ProviderStatusCode(err))
			assert.Equal(t, "body", err.Details)
		})
	}

	assert.True(t, ProviderNetworkError("Paylocity", "get plan", stderrors.New("dial tcp")).IsRetryable())
	assert.Equal(t, 0, ProviderStatusCode(stderrors.New("plain")))
}

func TestRetryer_Execute(t *testing.T) {
	fastConfig := func(attempts int) *RetryConfig {
		cfg := ProviderRetryConfig(attempts, time.Millisecond)
		cfg.Jitter = false
		return cfg
	}

	t.Run("success on first attempt", func(t *testing.T) {
		attempts := 0
		err := NewRetryer(fastConfig(3), testLogger()).Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := NewRetryer(fastConfig(3), testLogger()).Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts++
			if attempt < 3 {
				return ProviderAPIError("Paylocity", "get plan", http.StatusServiceUnavailable, "")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error after exhausting attempts", func(t *testing.T) {
		attempts := 0
		last := ProviderAPIError("Paylocity", "get plan", http.StatusBadGateway, "")
		err := NewRetryer(fastConfig(2), testLogger()).Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts++
			return last
		})
		assert.Same(t, last, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		attempts := 0
		err := NewRetryer(fastConfig(5), testLogger()).Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts++
			return ProviderAPIError("ClearCompany", "update requisition", http.StatusBadRequest, "")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewRetryer(fastConfig(3), testLogger()).Execute(ctx, func(ctx context.Context, attempt int) error {
			return nil
		})
		assert.True(t, IsCode(err, ErrCodeTimeout))
	})
}

func TestCircuitBreaker(t *testing.T) {
	failing := func(ctx context.Context) error { return stderrors.New("boom") }
	succeeding := func(ctx context.Context) error { return nil }

	t.Run("opens after threshold and rejects", func(t *testing.T) {
		cb := NewCircuitBreaker("paylocity", &CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}, testLogger())

		_ = cb.Execute(context.Background(), failing, nil)
		assert.Equal(t, StateClosed, cb.GetState())
		_ = cb.Execute(context.Background(), failing, nil)
		assert.Equal(t, StateOpen, cb.GetState())

		called := false
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		}, nil)
		assert.False(t, called)
		assert.True(t, IsCode(err, ErrCodeCircuitBreakerOpen))
	})

	t.Run("half-open probe closes the breaker", func(t *testing.T) {
		cb := NewCircuitBreaker("clearcompany", &CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, testLogger())
		now := time.Now()
		cb.now = func() time.Time { return now }

		_ = cb.Execute(context.Background(), failing, nil)
		require.Equal(t, StateOpen, cb.GetState())

		now = now.Add(2 * time.Minute)
		require.NoError(t, cb.Execute(context.Background(), succeeding, nil))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("uncountable failures do not trip", func(t *testing.T) {
		cb := NewCircuitBreaker("clearcompany", &CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour}, testLogger())
		_ = cb.Execute(context.Background(), failing, func(error) bool { return false })
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestHandler_HandleError(t *testing.T) {
	handler := NewHandler(testLogger())

	t.Run("service error envelope", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/requisitions", nil)

		handler.HandleError(recorder, req, fmt.Errorf("wrapped: %w", NewValidationError("Invalid request body")))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
		assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))

		var body ErrorEnvelope
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, "Invalid request body", body.Error.Message)
		assert.Equal(t, ErrCodeValidation, body.Error.Code)
	})

	t.Run("unknown error becomes internal server error", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/requisitions/1", nil)

		handler.HandleError(recorder, req, stderrors.New("database is locked"))

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		assert.JSONEq(t, `{"error":{"message":"Internal Server Error","code":"INTERNAL_SERVER_ERROR"}}`, recorder.Body.String())
	})

	t.Run("retry-after header", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/requisition-status", nil)

		handler.HandleError(recorder, req, NewError(ErrCodeRateLimited).WithMessage("Rate limit exceeded").WithRetryAfter(90*time.Second).Build())

		assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
		assert.Equal(t, "90", recorder.Header().Get("Retry-After"))
	})
}

func TestHandler_RecoverMiddleware(t *testing.T) {
	handler := NewHandler(testLogger())
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})

	recorder := httptest.NewRecorder()
	handler.RecoverMiddleware(panicking).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "INTERNAL_SERVER_ERROR")
}
