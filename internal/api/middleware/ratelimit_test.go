package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/stretchr/testify/require"
)

func serve(handler http.Handler, remoteAddr string, path string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLoginRateLimit_BlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{LoginPer15Minutes: 5})
	defer limiter.Stop()
	handler := limiter.Tier(TierLogin)(okHandler())

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, serve(handler, "192.168.1.101:54321", "/api/auth/login"), "request %d", i+1)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.168.1.101:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "180", rec.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, serve(handler, "192.168.1.102:54321", "/api/auth/login"), "other clients are unaffected")
}

func TestPublicRateLimit(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{PublicPerMinute: 2})
	defer limiter.Stop()
	handler := limiter.Middleware(okHandler())

	require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1", "/api/events"))
	require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1", "/api/events"))
	require.Equal(t, http.StatusTooManyRequests, serve(handler, "10.0.0.1:1", "/api/events"))
	require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1", "/healthz"))
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{})
	defer limiter.Stop()
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1", "/api/events"))
	}
}

func TestLimiterStoreCleanup(t *testing.T) {
	store := newLimiterStore(config.RateLimitConfig{PublicPerMinute: 10})
	defer store.Stop()

	store.limiter(TierPublic, "10.0.0.1")
	require.Len(t, store.limiters, 1)

	store.cleanup(time.Now().Add(limiterTTL + time.Minute))
	require.Empty(t, store.limiters)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{name: "direct connection", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{
			name:    "untrusted proxy header ignored",
			remote:  "203.0.113.5:4000",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4"},
			want:    "203.0.113.5",
		},
		{
			name:    "trusted proxy forwards client",
			remote:  "10.0.0.2:4000",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"},
			trusted: []string{"10.0.0.0/8"},
			want:    "1.2.3.4",
		},
		{
			name:    "trusted proxy real ip",
			remote:  "10.0.0.2:4000",
			headers: map[string]string{"X-Real-IP": "5.6.7.8"},
			trusted: []string{"10.0.0.0/8"},
			want:    "5.6.7.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, clientKey(req, tt.trusted))
		})
	}
}
