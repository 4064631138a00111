package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler is the outer error boundary for HTTP requests.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new error handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// WriteJSON writes body with the headers every response carries.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// Classify converts any error into a ServiceError. Errors without a
// ServiceError in their chain become INTERNAL_SERVER_ERROR.
func Classify(err error) *ServiceError {
	if se, ok := As(err); ok {
		return se
	}
	return NewError(ErrCodeInternal).
		WithCategory(CategoryServerError).
		WithSeverity(SeverityCritical).
		WithMessage(InternalErrorMessage).
		WithCause(err).
		Build()
}

// HandleError logs err and writes the failure envelope.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := Classify(err)
	h.logError(serviceErr, r)

	if serviceErr.RetryAfter != nil {
		w.Header().Set("Retry-After", formatRetryAfter(*serviceErr))
	}

	if encErr := WriteJSON(w, serviceErr.HTTPStatusCode(), serviceErr.ToEnvelope()); encErr != nil {
		h.logger.Error("Failed to encode error response", "error", encErr)
	}
}

// logError logs the error at a level derived from its severity
func (h *Handler) logError(serviceErr *ServiceError, r *http.Request) {
	attrs := []slog.Attr{
		slog.String("error_code", string(serviceErr.Code)),
		slog.String("error_category", string(serviceErr.Category)),
		slog.String("error_message", serviceErr.Message),
		slog.String("request_method", r.Method),
		slog.String("request_path", r.URL.Path),
		slog.Int("http_status", serviceErr.HTTPStatusCode()),
	}
	if serviceErr.Details != "" {
		attrs = append(attrs, slog.String("error_details", serviceErr.Details))
	}
	if serviceErr.Cause != nil {
		attrs = append(attrs, slog.String("underlying_error", serviceErr.Cause.Error()))
	}
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	h.logger.LogAttrs(r.Context(), levelFor(serviceErr.Severity), "Request failed", attrs...)
}

func levelFor(severity Severity) slog.Level {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return slog.LevelError
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RecoverMiddleware turns panics into INTERNAL_SERVER_ERROR envelopes
func (h *Handler) RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.HandleError(w, r, NewError(ErrCodeInternal).
					WithSeverity(SeverityCritical).
					WithMessage(InternalErrorMessage).
					WithDetails(formatPanic(rec)).
					Build())
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func formatPanic(rec interface{}) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatRetryAfter(e ServiceError) string {
	seconds := int(e.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
