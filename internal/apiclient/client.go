// Package apiclient is the JSON transport shared by the provider adapters.
// It handles bearer authentication, rate limiting, retries and circuit breaking.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/atlet99/requisition-sync/internal/errors"
)

// ErrNotFound is returned when the provider answers 404
var ErrNotFound = stderrors.New("resource not found")

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 10
	maxErrorBody     = 4096
	tracerName       = "github.com/atlet99/requisition-sync/internal/apiclient"
)

// Observer receives one observation per HTTP attempt. status is 0 on transport failure.
type Observer interface {
	ObserveProviderRequest(provider, operation string, status int, duration time.Duration)
}

// Config configures a provider client
type Config struct {
	Provider         string
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RateLimit        float64
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	CircuitBreaker   *errors.CircuitBreakerConfig
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver reports every attempt to o
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client sends JSON requests to one provider
type Client struct {
	provider   string
	baseURL    string
	authHeader string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryer    *errors.Retryer
	breaker    *errors.CircuitBreaker
	observer   Observer
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates a client for cfg.Provider
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}

	logger = logger.With("provider", cfg.Provider)
	logger.Info("Initializing provider client", "base_url", cfg.BaseURL)

	c := &Client{
		provider:   cfg.Provider,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: "Bearer " + cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		retryer:    errors.NewRetryer(errors.ProviderRetryConfig(cfg.RetryMaxAttempts, cfg.RetryBaseDelay), logger),
		breaker:    errors.NewCircuitBreaker(cfg.Provider, cfg.CircuitBreaker, logger),
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name used in errors and logs
func (c *Client) Provider() string {
	return c.provider
}

// BreakerState returns the circuit breaker state
func (c *Client) BreakerState() errors.CircuitBreakerState {
	return c.breaker.GetState()
}

// Do sends one logical request. in is JSON-encoded when non-nil; a 2xx body
// is decoded into out when out is non-nil. A 404 yields ErrNotFound, other
// failures a *errors.ServiceError with code INTEGRATION_ERROR.
func (c *Client) Do(ctx context.Context, method, path, operation string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, c.provider+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", operation, err)
		}
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retryer.Execute(ctx, func(ctx context.Context, attempt int) error {
			return c.attempt(ctx, method, path, operation, payload, out)
		})
	}, isProviderFailure)

	if err != nil && !stderrors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) attempt(ctx context.Context, method, path, operation string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewError(errors.ErrCodeTimeout).
			WithMessage("Provider rate limiter wait canceled").
			WithCause(err).
			Build()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, 0, time.Since(start))
		return errors.ProviderNetworkError(c.provider, operation, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	c.observe(operation, resp.StatusCode, time.Since(start))
	if err != nil {
		return errors.ProviderNetworkError(c.provider, operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", c.provider, operation, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		c.logger.Warn("Provider request failed",
			"operation", operation,
			"status", resp.StatusCode,
			"response", string(respBody))
		return errors.ProviderAPIError(c.provider, operation, resp.StatusCode, string(respBody))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.NewError(errors.ErrCodeIntegration).
			WithCategory(errors.CategoryExternalError).
			WithMessage(fmt.Sprintf("Invalid %s response for %s", c.provider, operation)).
			WithCause(err).
			Build()
	}
	return nil
}

func (c *Client) observe(operation string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveProviderRequest(c.provider, operation, status, d)
	}
}

// isProviderFailure decides which errors count against the circuit breaker:
// transport failures and retryable statuses, not 4xx answers.
func isProviderFailure(err error) bool {
	se, ok := errors.As(err)
	return ok && se.IsRetryable()
}
