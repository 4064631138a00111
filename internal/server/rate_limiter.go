package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/monitoring"
)

const (
	// Default rate limiting values
	defaultRate  = 20.0
	defaultBurst = 40

	// Limiters idle longer than this are dropped
	limiterIdleTTL = 10 * time.Minute
)

// HTTPRateLimiter provides rate limiting for HTTP requests
type HTTPRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	config   *RateLimiterConfig
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	DefaultRate  float64 // requests per second
	DefaultBurst int     // burst limit
	PerIP        bool    // whether to limit per client address
	PerEndpoint  bool    // whether to limit per route template
}

// NewHTTPRateLimiter creates a new HTTP rate limiter
func NewHTTPRateLimiter(config *RateLimiterConfig) *HTTPRateLimiter {
	if config == nil {
		config = &RateLimiterConfig{
			DefaultRate:  defaultRate,
			DefaultBurst: defaultBurst,
			PerIP:        true,
			PerEndpoint:  true,
		}
	}

	return &HTTPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		now:      time.Now,
	}
}

// getLimiterKey generates a key for the rate limiter based on configuration
func (rl *HTTPRateLimiter) getLimiterKey(r *http.Request) string {
	key := "global"
	if rl.config.PerEndpoint {
		key = monitoring.RouteLabel(r)
	}
	if rl.config.PerIP {
		key += ":" + getClientIP(r)
	}
	return key
}

// getClientIP extracts the client address, preferring the first proxy hop
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// getOrCreateLimiter gets or creates a rate limiter for the given key
func (rl *HTTPRateLimiter) getOrCreateLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, exists := rl.limiters[key]; exists {
		entry.lastSeen = now
		return entry.limiter
	}

	rl.evictIdle(now)

	limiter := rate.NewLimiter(rate.Limit(rl.config.DefaultRate), rl.config.DefaultBurst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// evictIdle drops limiters not used within limiterIdleTTL. Caller holds mu.
func (rl *HTTPRateLimiter) evictIdle(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

// Allow checks if the request is allowed based on rate limiting
func (rl *HTTPRateLimiter) Allow(r *http.Request) bool {
	return rl.getOrCreateLimiter(rl.getLimiterKey(r)).Allow()
}

// Size returns the number of tracked limiters
func (rl *HTTPRateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimitMiddleware rejects requests over the limit with a RATE_LIMITED
// envelope. blocked may be nil.
func RateLimitMiddleware(limiter *HTTPRateLimiter, errHandler *errors.Handler, blocked func(route string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r) {
				if blocked != nil {
					blocked(monitoring.RouteLabel(r))
				}
				errHandler.HandleError(w, r, errors.NewError(errors.ErrCodeRateLimited).
					WithMessage("Rate limit exceeded").
					WithRetryAfter(time.Second).
					Build())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
