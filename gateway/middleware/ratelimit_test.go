package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func doRequest(limiter *RateLimiter, remote, forwarded string) int {
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	for i := 0; i < 2; i++ {
		if code := doRequest(limiter, "192.0.2.1:1000", ""); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := doRequest(limiter, "192.0.2.1:1000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected throttle, got %d", code)
	}
	// a different client has its own bucket
	if code := doRequest(limiter, "192.0.2.2:1000", ""); code != http.StatusOK {
		t.Fatalf("other client throttled: %d", code)
	}
}

func TestRateLimiterUsesForwardedHeader(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	if code := doRequest(limiter, "10.0.0.1:1000", "203.0.113.7, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	// same forwarded client behind a different proxy shares the bucket
	if code := doRequest(limiter, "10.0.0.2:1000", "203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected shared bucket throttle, got %d", code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	current := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return current }

	doRequest(limiter, "192.0.2.1:1000", "")
	if len(limiter.visitors) != 1 {
		t.Fatalf("visitors: %d", len(limiter.visitors))
	}
	current = current.Add(2 * time.Hour)
	doRequest(limiter, "192.0.2.2:1000", "")
	if _, ok := limiter.visitors["192.0.2.1"]; ok {
		t.Fatalf("idle visitor not evicted")
	}
}
