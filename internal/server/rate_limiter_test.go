package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:4000", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:4000", want: "198.51.100.4"},
		{name: "remote addr", remote: "192.0.2.9:51234", want: "192.0.2.9"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:443", want: "[2001:db8::1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestHTTPRateLimiter_Allow(t *testing.T) {
	rl := NewHTTPRateLimiter(&RateLimiterConfig{DefaultRate: 0.001, DefaultBurst: 2, PerIP: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1000"

	assert.True(t, rl.Allow(req))
	assert.True(t, rl.Allow(req))
	assert.False(t, rl.Allow(req))

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "192.0.2.2:1000"
	assert.True(t, rl.Allow(other))
	assert.Equal(t, 2, rl.Size())
}

func TestHTTPRateLimiter_GlobalKey(t *testing.T) {
	rl := NewHTTPRateLimiter(&RateLimiterConfig{DefaultRate: 0.001, DefaultBurst: 1})

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "192.0.2.1:1000"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "192.0.2.2:1000"

	assert.True(t, rl.Allow(first))
	assert.False(t, rl.Allow(second))
	assert.Equal(t, 1, rl.Size())
}

func TestHTTPRateLimiter_EvictsIdle(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rl := NewHTTPRateLimiter(&RateLimiterConfig{DefaultRate: 1, DefaultBurst: 1, PerIP: true})
	rl.now = func() time.Time { return now }

	idle := httptest.NewRequest(http.MethodGet, "/", nil)
	idle.RemoteAddr = "192.0.2.1:1000"
	rl.Allow(idle)

	now = now.Add(limiterIdleTTL + time.Second)

	fresh := httptest.NewRequest(http.MethodGet, "/", nil)
	fresh.RemoteAddr = "192.0.2.2:1000"
	rl.Allow(fresh)

	assert.Equal(t, 1, rl.Size())
}

func TestNewHTTPRateLimiter_Defaults(t *testing.T) {
	rl := NewHTTPRateLimiter(nil)
	assert.Equal(t, defaultRate, rl.config.DefaultRate)
	assert.Equal(t, defaultBurst, rl.config.DefaultBurst)
	assert.True(t, rl.config.PerIP)
}
