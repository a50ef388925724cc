package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"custodia/gateway/auth"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(RateLimit{RequestsPerSecond: 100, Burst: 5}, nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/escrows/ab", nil)
	req.Header.Set(auth.HeaderAPIKey, "ops")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	rl := NewRateLimiter(RateLimit{RequestsPerSecond: 0.001, Burst: 2}, nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/escrows/ab", nil)
		req.Header.Set(auth.HeaderAPIKey, "ops")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(RateLimit{RequestsPerSecond: 0.001, Burst: 1}, nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, key := range []string{"alpha", "beta"} {
		req := httptest.NewRequest("GET", "/v1/escrows/ab", nil)
		req.Header.Set(auth.HeaderAPIKey, key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s throttled on first request: %d", key, rec.Code)
		}
	}
}
