// Package errors provides structured error types and handling utilities
// for the requisition sync service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode is the stable machine-readable code returned in error envelopes
type ErrorCode string

// Error codes surfaced to API clients
const (
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeAuthentication     ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeIntegration        ErrorCode = "INTEGRATION_ERROR"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeCircuitBreakerOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeInternal           ErrorCode = "INTERNAL_SERVER_ERROR"
)

// InternalErrorMessage is the message used for unclassified failures.
const InternalErrorMessage = "Internal Server Error"

// ErrorCategory represents the type of error for handling strategy
type ErrorCategory string

const (
	// CategoryClientError represents caller mistakes (4xx)
	CategoryClientError ErrorCategory = "CLIENT_ERROR"
	// CategoryServerError represents failures inside this service (5xx)
	CategoryServerError ErrorCategory = "SERVER_ERROR"
	// CategoryExternalError represents provider API failures
	CategoryExternalError ErrorCategory = "EXTERNAL_ERROR"
	// CategoryRetryableError represents transient failures
	CategoryRetryableError ErrorCategory = "RETRYABLE_ERROR"
	// CategoryRateLimitError represents throttling
	CategoryRateLimitError ErrorCategory = "RATE_LIMIT_ERROR"
	// CategoryTimeoutError represents deadline or cancellation failures
	CategoryTimeoutError ErrorCategory = "TIMEOUT_ERROR"
)

// Severity levels for error classification
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ServiceError represents a structured error with context
type ServiceError struct {
	Code       ErrorCode
	Category   ErrorCategory
	Severity   Severity
	Message    string
	Details    string
	Context    map[string]interface{}
	Cause      error
	Timestamp  time.Time
	StatusCode int // overrides the code's default HTTP status when non-zero
	RetryAfter *time.Duration
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is worth retrying
func (e *ServiceError) IsRetryable() bool {
	return e.Category == CategoryRetryableError ||
		e.Category == CategoryTimeoutError ||
		e.Category == CategoryRateLimitError
}

// IsClientError returns true if the error is caused by the caller
func (e *ServiceError) IsClientError() bool {
	return e.Category == CategoryClientError
}

// HTTPStatusCode returns the HTTP status code for the error
func (e *ServiceError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeCircuitBreakerOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the inner object of a failure envelope
type ErrorBody struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code,omitempty"`
}

// ErrorEnvelope is the JSON body written for every failed request
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ToEnvelope converts the error to its wire representation
func (e *ServiceError) ToEnvelope() ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Message: e.Message, Code: e.Code}}
}

// ErrorBuilder helps construct ServiceError instances
type ErrorBuilder struct {
	error *ServiceError
}

// NewError creates a new ErrorBuilder
func NewError(code ErrorCode) *ErrorBuilder {
	return &ErrorBuilder{
		error: &ServiceError{
			Code:      code,
			Timestamp: time.Now(),
			Context:   make(map[string]interface{}),
		},
	}
}

// WithCategory sets the error category
func (b *ErrorBuilder) WithCategory(category ErrorCategory) *ErrorBuilder {
	b.error.Category = category
	return b
}

// WithSeverity sets the error severity
func (b *ErrorBuilder) WithSeverity(severity Severity) *ErrorBuilder {
	b.error.Severity = severity
	return b
}

// WithMessage sets the error message
func (b *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	b.error.Message = message
	return b
}

// WithDetails sets additional error details
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithCause sets the underlying cause
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// WithContext adds context information
func (b *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	b.error.Context[key] = value
	return b
}

// WithStatusCode overrides the default HTTP status for the code
func (b *ErrorBuilder) WithStatusCode(status int) *ErrorBuilder {
	b.error.StatusCode = status
	return b
}

// WithRetryAfter sets retry-after duration for rate limiting
func (b *ErrorBuilder) WithRetryAfter(duration time.Duration) *ErrorBuilder {
	b.error.RetryAfter = &duration
	return b
}

// Build returns the constructed ServiceError
func (b *ErrorBuilder) Build() *ServiceError {
	if b.error.Category == "" {
		b.error.Category = getDefaultCategory(b.error.Code)
	}
	if b.error.Severity == "" {
		b.error.Severity = getDefaultSeverity(b.error.Code)
	}
	return b.error
}

// NewValidationError reports malformed or incomplete input.
func NewValidationError(message string, details ...string) *ServiceError {
	b := NewError(ErrCodeValidation).WithMessage(message)
	if len(details) > 0 {
		b.WithDetails(details[0])
	}
	return b.Build()
}

// NewNotFoundError reports an entity absent from every source consulted.
func NewNotFoundError(message string) *ServiceError {
	return NewError(ErrCodeNotFound).WithMessage(message).Build()
}

// NewIntegrationError reports a failure talking to an external system.
func NewIntegrationError(message string, cause error) *ServiceError {
	return NewError(ErrCodeIntegration).WithMessage(message).WithCause(cause).Build()
}

// NewAuthenticationError reports rejected or missing credentials.
func NewAuthenticationError(message string) *ServiceError {
	return NewError(ErrCodeAuthentication).WithMessage(message).Build()
}

// As extracts a ServiceError from an error chain.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	se, ok := As(err)
	return ok && se.Code == code
}

// getDefaultCategory returns default category for error code
func getDefaultCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeAuthentication:
		return CategoryClientError
	case ErrCodeRateLimited:
		return CategoryRateLimitError
	case ErrCodeTimeout:
		return CategoryTimeoutError
	case ErrCodeIntegration:
		return CategoryExternalError
	case ErrCodeCircuitBreakerOpen:
		return CategoryRetryableError
	default:
		return CategoryServerError
	}
}

// getDefaultSeverity returns default severity for error code
func getDefaultSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeValidation, ErrCodeNotFound:
		return SeverityLow
	case ErrCodeAuthentication, ErrCodeRateLimited, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeIntegration, ErrCodeCircuitBreakerOpen:
		return SeverityHigh
	case ErrCodeInternal:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
