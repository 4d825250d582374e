package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
}

// window is a fixed window counter that also remembers the previous
// window's count. The estimate weights the previous count by the share of
// it still inside the sliding window.
type window struct {
	start time.Time
	count float64
	prev  float64
}

func (w *window) advance(now time.Time, size time.Duration) {
	age := now.Sub(w.start)
	if age < size {
		return
	}
	prev := w.count
	if age >= 2*size {
		prev = 0
	}
	w.prev, w.count, w.start = prev, 0, now.Truncate(size)
}

func (w *window) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - float64(now.Sub(w.start))/float64(size)
	return w.prev*max(overlap, 0) + w.count
}

type rateLimiter struct {
	limit   int
	size    time.Duration
	keyFunc func(*http.Request) string

	mu      sync.Mutex
	entries map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientIP
	}
	return &rateLimiter{
		limit:   cfg.Max,
		size:    cfg.Window,
		keyFunc: keyFunc,
		entries: make(map[string]*window),
	}
}

// allow records a request for key at now unless the key is over its limit.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.entries[key]
	if !ok {
		w = &window{start: now}
		rl.entries[key] = w
	}
	w.advance(now, rl.size)

	resetAt = w.start.Add(rl.size)
	used := w.estimate(now, rl.size)
	if used >= float64(rl.limit) {
		return 0, resetAt, false
	}
	w.count++
	return max(int(float64(rl.limit)-used-1), 0), resetAt, true
}

// cleanup drops keys idle for at least two windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.entries {
		if now.Sub(w.start) >= 2*rl.size {
			delete(rl.entries, key)
		}
	}
}

func (rl *rateLimiter) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, resetAt, allowed := rl.allow(rl.keyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := max(time.Until(resetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces a per-key sliding window limit, answering 429 with a
// JSON body once a key is over it. Every response carries the
// X-RateLimit-* headers. Idle keys are never evicted; long-running servers
// should use RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.runCleanup(ctx)
	return rl.middleware
}

// HeaderKeyFunc keys requests by the value of header, falling back to the
// client IP when the header is absent or oversized.
func HeaderKeyFunc(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" && len(v) <= 128 {
			return header + ":" + v
		}
		return clientIP(r)
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
