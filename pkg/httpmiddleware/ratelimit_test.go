package httpmiddleware

import (
	"context"
	"encoding/json"
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

type limitedRequest struct {
	remoteAddr string
	headers    map[string]string
	want       int
}

func runRequests(t *testing.T, h http.Handler, reqs []limitedRequest) {
	t.Helper()
	for i, lr := range reqs {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.RemoteAddr = lr.remoteAddr
		for k, v := range lr.headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, lr.want, w.Code, "request %d", i+1)
	}
}

func TestRateLimit_Keys(t *testing.T) {
	const sessionA = "5b0a3c1e-0d5f-4a8e-9a41-1c2d3e4f5a6b"
	const sessionB = "0f9e8d7c-6b5a-4c3d-8e2f-1a0b9c8d7e6f"

	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		reqs    []limitedRequest
	}{
		{
			name: "client ip",
			reqs: []limitedRequest{
				{remoteAddr: "10.0.0.1:1234", want: http.StatusOK},
				{remoteAddr: "10.0.0.2:1234", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:5678", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "x-forwarded-for first hop",
			reqs: []limitedRequest{
				{remoteAddr: "192.168.1.1:4444", headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, want: http.StatusOK},
				{remoteAddr: "192.168.1.2:5555", headers: map[string]string{"X-Forwarded-For": "203.0.113.50"}, want: http.StatusTooManyRequests},
			},
		},
		{
			name: "x-real-ip",
			reqs: []limitedRequest{
				{remoteAddr: "192.168.1.1:4444", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: http.StatusOK},
				{remoteAddr: "192.168.1.9:4444", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: http.StatusTooManyRequests},
			},
		},
		{
			name:    "session header behind one address",
			keyFunc: HeaderKeyFunc("X-Session-ID"),
			reqs: []limitedRequest{
				{remoteAddr: "10.0.0.1:1", headers: map[string]string{"X-Session-ID": sessionA}, want: http.StatusOK},
				{remoteAddr: "10.0.0.1:2", headers: map[string]string{"X-Session-ID": sessionB}, want: http.StatusOK},
				{remoteAddr: "10.0.0.1:3", headers: map[string]string{"X-Session-ID": sessionA}, want: http.StatusTooManyRequests},
			},
		},
		{
			name:    "session header absent falls back to ip",
			keyFunc: HeaderKeyFunc("X-Session-ID"),
			reqs: []limitedRequest{
				{remoteAddr: "10.0.0.1:1", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:2", want: http.StatusTooManyRequests},
				{remoteAddr: "10.0.0.1:3", headers: map[string]string{"X-Session-ID": sessionA}, want: http.StatusOK},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())
			runRequests(t, h, tt.reqs)
		})
	}
}

func TestRateLimit_HeadersAndBody(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"1", "0"}[i], w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := rl.allow("k", start)
		require.True(t, ok)
	}
	_, _, ok := rl.allow("k", start.Add(30*time.Second))
	require.False(t, ok)

	// A quarter into the next window, 3/4 of the previous count still weighs in.
	_, _, ok = rl.allow("k", start.Add(75*time.Second))
	assert.True(t, ok)
	_, _, ok = rl.allow("k", start.Add(75*time.Second))
	assert.False(t, ok)

	// Two windows later the history is gone.
	remaining, _, ok := rl.allow("k", start.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	rl.allow("stale", now)
	rl.allow("fresh", now.Add(90*time.Second))
	rl.cleanup(now.Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.entries, "stale")
	assert.Contains(t, rl.entries, "fresh")
}

func TestRateLimitWithCleanup_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 1, Window: time.Millisecond})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	cancel()
	// goleak in TestMain verifies the cleanup goroutine exits.
}

func TestRateLimit_ClientLimitCoversRotatingSessions(t *testing.T) {
	h := Wrap(okHandler(),
		RateLimit(RateLimitConfig{Max: 2, Window: time.Minute}),
		RateLimit(RateLimitConfig{Max: 10, Window: time.Minute, KeyFunc: HeaderKeyFunc("X-Session-ID")}),
	)

	runRequests(t, h, []limitedRequest{
		{remoteAddr: "10.0.0.1:1000", headers: map[string]string{"X-Session-ID": "a"}, want: http.StatusOK},
		{remoteAddr: "10.0.0.1:1000", headers: map[string]string{"X-Session-ID": "b"}, want: http.StatusOK},
		{remoteAddr: "10.0.0.1:1000", headers: map[string]string{"X-Session-ID": "c"}, want: http.StatusTooManyRequests},
		{remoteAddr: "10.0.0.2:1000", headers: map[string]string{"X-Session-ID": "c"}, want: http.StatusOK},
	})
}
