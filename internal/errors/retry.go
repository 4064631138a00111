package errors

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	mathRand "math/rand"
	"sync"
	"time"
)

// Retry configuration constants
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMultiplier   = 2.0

	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultCircuitTimeout   = 30 * time.Second

	jitterPercentage = 0.25
	jitterMultiplier = 2
	jitterOffset     = 0.5
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        bool
	RetryableFunc func(error) bool
}

// DefaultRetryConfig returns sensible default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		Jitter:       true,
		RetryableFunc: func(err error) bool {
			if serviceErr, ok := As(err); ok {
				return serviceErr.IsRetryable()
			}
			return false
		},
	}
}

// ProviderRetryConfig returns the retry policy used for provider API calls.
// Non-positive values fall back to the defaults.
func ProviderRetryConfig(maxAttempts int, baseDelay time.Duration) *RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		cfg.InitialDelay = baseDelay
	}
	return cfg
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context, attempt int) error

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config *RetryConfig
	logger *slog.Logger

	mu   sync.Mutex
	rand *mathRand.Rand
}

// generateSecureSeed generates a cryptographically secure seed for math/rand
func generateSecureSeed() int64 {
	var seed int64
	if err := binary.Read(rand.Reader, binary.BigEndian, &seed); err != nil {
		return time.Now().UnixNano()
	}
	return seed
}

// NewRetryer creates a new retryer with the given configuration
func NewRetryer(config *RetryConfig, logger *slog.Logger) *Retryer {
	if config == nil {
		config = DefaultRetryConfig()
	}

	return &Retryer{
		config: config,
		logger: logger,
		rand:   mathRand.New(mathRand.NewSource(generateSecureSeed())), //nolint:gosec // jitter only
	}
}

// Execute runs the operation until it succeeds, returns a non-retryable
// error, or exhausts MaxAttempts. The last operation error is returned as is.
func (r *Retryer) Execute(ctx context.Context, operation RetryableOperation) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewError(ErrCodeTimeout).
				WithMessage("Operation canceled").
				WithCause(err).
				Build()
		}

		err := operation(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"attempt", attempt,
					"total_attempts", r.config.MaxAttempts)
			}
			return nil
		}

		lastErr = err

		if !r.isRetryable(err) {
			r.logger.Debug("Error is not retryable, stopping retry attempts",
				"error", err,
				"attempt", attempt)
			return lastErr
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)

		r.logger.Warn("Operation failed, retrying",
			"error", err,
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"delay_ms", delay.Milliseconds())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return NewError(ErrCodeTimeout).
				WithMessage("Operation canceled during retry delay").
				WithCause(ctx.Err()).
				Build()
		case <-timer.C:
		}
	}

	r.logger.Error("Operation failed after all retry attempts",
		"error", lastErr,
		"total_attempts", r.config.MaxAttempts)

	return lastErr
}

// calculateDelay calculates the delay for the next retry attempt
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		r.mu.Lock()
		jitter := (r.rand.Float64() - jitterOffset) * jitterMultiplier * delay * jitterPercentage
		r.mu.Unlock()
		delay += jitter
	}

	if delay < 0 {
		delay = float64(r.config.InitialDelay)
	}

	return time.Duration(delay)
}

// isRetryable determines if an error should be retried
func (r *Retryer) isRetryable(err error) bool {
	if r.config.RetryableFunc != nil {
		return r.config.RetryableFunc(err)
	}
	return false
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed lets requests through
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects requests until the timeout elapses
	StateOpen
	// StateHalfOpen lets requests probe for recovery
	StateHalfOpen
)

// String returns string representation of circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold: defaultFailureThreshold,
		SuccessThreshold: defaultSuccessThreshold,
		Timeout:          defaultCircuitTimeout,
	}
}

// CircuitBreaker implements the circuit breaker pattern. It is safe for
// concurrent use.
type CircuitBreaker struct {
	name   string
	config *CircuitBreakerConfig
	logger *slog.Logger

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	stateChangeTime time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		stateChangeTime: time.Now(),
		now:             time.Now,
	}
}

// Execute executes an operation through the circuit breaker. Only failures
// for which countable returns true trip the breaker; a nil countable counts
// every failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(ctx context.Context) error, countable func(error) bool) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := operation(ctx)
	cb.after(err != nil && (countable == nil || countable(err)))
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	elapsed := cb.now().Sub(cb.stateChangeTime)
	if elapsed < cb.config.Timeout {
		remaining := cb.config.Timeout - elapsed
		return NewError(ErrCodeCircuitBreakerOpen).
			WithMessage(fmt.Sprintf("Circuit breaker for %s is open", cb.name)).
			WithRetryAfter(remaining).
			Build()
	}

	cb.transitionTo(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if failed {
		cb.failureCount++
		cb.successCount = 0
		switch cb.state {
		case StateClosed:
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.transitionTo(StateOpen)
			}
		case StateHalfOpen:
			cb.transitionTo(StateOpen)
		}
		return
	}

	cb.successCount++
	switch cb.state {
	case StateHalfOpen:
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// transitionTo must be called with mu held
func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stateChangeTime = cb.now()

	switch newState {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
	case StateOpen, StateHalfOpen:
		cb.successCount = 0
	}

	cb.logger.Info("Circuit breaker state changed",
		"breaker", cb.name,
		"old_state", oldState.String(),
		"new_state", newState.String())
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
