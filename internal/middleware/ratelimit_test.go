package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glycoguard/glycoguard/internal/cache"
	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/testutil"
)

// countingLimiter allows the first n calls per IP.
type countingLimiter struct {
	mu    sync.Mutex
	n     int
	calls map[string]int
}

func (l *countingLimiter) CheckLoginRateLimit(_ context.Context, ip string, _ float64, burst int) *cache.RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[ip]++
	if l.calls[ip] > l.n {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second, ResetAt: time.Now()}
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(l.n - l.calls[ip]), ResetAt: time.Now()}
}

func TestRateLimitLogin(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{n: 2}
	recorder := metrics.NewInMemory()
	handler := RateLimitLogin(RateLimitConfig{
		Logger:  testutil.DiscardLogger(),
		Limiter: limiter,
		Metrics: recorder,
		RPS:     1,
		Burst:   2,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := post("10.0.0.1:5555"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := post("10.0.0.1:6666")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Errorf("Retry-After = %q, want 3", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", rec.Header().Get("X-RateLimit-Limit"))
	}

	// The port is not part of the bucket key.
	if limiter.calls["10.0.0.1"] != 3 {
		t.Errorf("calls for 10.0.0.1 = %d, want 3", limiter.calls["10.0.0.1"])
	}
	if rec := post("10.0.0.2:5555"); rec.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", rec.Code)
	}
	if got := recorder.Snapshot().Logins[metrics.OutcomeRateLimited]; got != 1 {
		t.Errorf("rate limited logins = %d, want 1", got)
	}
}

func TestRateLimitLogin_GetNotLimited(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{n: 0}
	handler := RateLimitLogin(RateLimitConfig{Logger: testutil.DiscardLogger(), Limiter: limiter, RPS: 1, Burst: 1})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET should not be limited, status = %d", rec.Code)
	}
	if len(limiter.calls) != 0 {
		t.Error("GET should not consume tokens")
	}
}

func TestRateLimitLogin_Disabled(t *testing.T) {
	t.Parallel()

	handler := RateLimitLogin(RateLimitConfig{Logger: testutil.DiscardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"192.168.1.1:1234": "192.168.1.1",
		"[::1]:8080":       "::1",
		"203.0.113.9":      "203.0.113.9",
	}
	for remote, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", remote, got, want)
		}
	}
}

func TestRateLimitLogin_WithRedis(t *testing.T) {
	t.Parallel()

	// Exercises the real Lua bucket end to end through miniredis.
	c := newMiniredisCache(t)

	handler := RateLimitLogin(RateLimitConfig{Logger: testutil.DiscardLogger(), Limiter: c, RPS: 0.001, Burst: 1})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
