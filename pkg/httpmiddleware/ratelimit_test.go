package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitKeysPerClient(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(first, req)
	require.Equal(t, http.StatusOK, first.Code)

	blocked := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	h.ServeHTTP(blocked, req)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code, "same IP, different port")

	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code, "different IP gets its own bucket")
}

func TestRateLimitHonoursForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitRefills(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Second})
	now := time.Now()

	_, allowed := l.take("k", now)
	require.True(t, allowed)
	_, allowed = l.take("k", now)
	require.True(t, allowed)
	_, allowed = l.take("k", now)
	require.False(t, allowed)

	_, allowed = l.take("k", now.Add(time.Second))
	assert.True(t, allowed, "tokens refill over the window")
}

func TestRateLimitEvictsStale(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()

	l.take("old", now)
	l.take("fresh", now.Add(time.Second))
	l.evictStale(now.Add(2 * time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "old")
	assert.Contains(t, l.buckets, "fresh")
}
