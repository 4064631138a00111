package server

import (
	"net/http"
	"time"

	"github.com/atlet99/requisition-sync/internal/monitoring"
)

// limitBody caps request bodies; reads past the cap fail
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := monitoring.NewResponseWriter(w)

		next.ServeHTTP(rw, r)

		attrs := []any{
			"method", r.Method,
			"route", monitoring.RouteLabel(r),
			"path", r.URL.Path,
			"status", rw.StatusCode,
			"duration", time.Since(start),
		}
		switch {
		case rw.StatusCode >= http.StatusInternalServerError:
			s.logger.Error("Request failed", attrs...)
		case rw.StatusCode >= http.StatusBadRequest:
			s.logger.Warn("Request rejected", attrs...)
		default:
			s.logger.Info("Request completed", attrs...)
		}
	})
}
