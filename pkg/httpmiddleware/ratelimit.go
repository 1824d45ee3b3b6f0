package httpmiddleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity and the sustained requests-per-Window rate.
	Max int
	// Window is the period over which Max requests refill.
	Window time.Duration
	// KeyFunc extracts the limit key from a request; defaults to client IP.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type limiter struct {
	cfg     RateLimitConfig
	refill  float64 // tokens per second
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		cfg:     cfg,
		refill:  float64(cfg.Max) / cfg.Window.Seconds(),
		buckets: make(map[string]*bucket),
	}
}

// take consumes one token for key, reporting the remaining count and whether
// the request is allowed.
func (l *limiter) take(key string, now time.Time) (remaining int, allowed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Max), lastSeen: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * l.refill
	if limit := float64(l.cfg.Max); b.tokens > limit {
		b.tokens = limit
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return 0, false
	}
	b.tokens--
	return int(b.tokens), true
}

func (l *limiter) evictStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= 2*l.cfg.Window {
			delete(l.buckets, key)
		}
	}
}

// RateLimit enforces a per-client token bucket. Exceeding it yields 429 with
// a JSON body; every response carries X-RateLimit headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle buckets until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evictStale(now)
			}
		}
	}()
	return rateLimit(l)
}

func rateLimit(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, allowed := l.take(l.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Duration(1/l.refill*float64(time.Second)).Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"kind":    "rate_limited",
					"message": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address, honouring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
