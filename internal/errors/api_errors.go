package errors

import (
	"fmt"
	"net/http"
	"time"
)

const providerRateLimitRetryAfter = time.Minute

// ProviderAPIError builds the error for a non-2xx provider response. The
// code is always INTEGRATION_ERROR; the category decides retryability.
func ProviderAPIError(provider, operation string, statusCode int, responseBody string) *ServiceError {
	category, severity := classifyProviderStatus(statusCode)

	builder := NewError(ErrCodeIntegration).
		WithCategory(category).
		WithSeverity(severity).
		WithMessage(fmt.Sprintf("%s API %s failed with status %d", provider, operation, statusCode)).
		WithContext("provider", provider).
		WithContext("operation", operation).
		WithContext("status_code", statusCode)

	if responseBody != "" {
		builder.WithDetails(responseBody)
	}
	if statusCode == http.StatusTooManyRequests {
		builder.WithRetryAfter(providerRateLimitRetryAfter)
	}

	return builder.Build()
}

// ProviderNetworkError builds the error for a transport failure. Transport
// failures are retried.
func ProviderNetworkError(provider, operation string, cause error) *ServiceError {
	return NewError(ErrCodeIntegration).
		WithCategory(CategoryRetryableError).
		WithSeverity(SeverityMedium).
		WithMessage(fmt.Sprintf("Network error during %s %s", provider, operation)).
		WithCause(cause).
		WithContext("provider", provider).
		WithContext("operation", operation).
		Build()
}

// ProviderStatusCode returns the HTTP status recorded by ProviderAPIError,
// or 0 when err carries none.
func ProviderStatusCode(err error) int {
	se, ok := As(err)
	if !ok {
		return 0
	}
	if code, ok := se.Context["status_code"].(int); ok {
		return code
	}
	return 0
}

func classifyProviderStatus(statusCode int) (ErrorCategory, Severity) {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return CategoryRateLimitError, SeverityMedium
	case statusCode == http.StatusGatewayTimeout || statusCode == http.StatusRequestTimeout:
		return CategoryTimeoutError, SeverityMedium
	case statusCode >= http.StatusInternalServerError:
		return CategoryRetryableError, SeverityHigh
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return CategoryExternalError, SeverityHigh
	default:
		return CategoryExternalError, SeverityMedium
	}
}
