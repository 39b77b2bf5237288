package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/verisend/server/internal/config"
)

func TestRateLimit_AllowsWithinLimit(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 5}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications", nil)
		req.RemoteAddr = "203.0.113.10:4444"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 2}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications", nil)
		req.RemoteAddr = "203.0.113.10:4444"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after limit exhausted, got %d", last.Code)
	}
	if got := last.Header().Get("Retry-After"); got == "" {
		t.Error("expected Retry-After header on 429 response")
	}
	if body := last.Body.String(); !strings.Contains(body, "rate-limited") {
		t.Errorf("expected a rate-limited problem document, got %s", body)
	}
}

func TestRateLimit_SkipsHealthEndpoints(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.10:4444"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("health probe %d rate limited: %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_PerClientBuckets(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/api/v1/verifications", nil)
	first.RemoteAddr = "203.0.113.10:4444"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client should pass, got %d", rec.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/verifications", nil)
	other.RemoteAddr = "203.0.113.20:4444"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("second client has its own bucket, got %d", rec.Code)
	}
}

func TestRateLimit_LoginTierIsStricter(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 100, LoginPerMinute: 1}

	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", nil)
		req.RemoteAddr = "203.0.113.10:4444"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("login tier should be stricter than public, got %d", last.Code)
	}

	// Public traffic from the same client is unaffected by the login bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", nil)
	req.RemoteAddr = "203.0.113.10:4444"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("public request should use its own bucket, got %d", rec.Code)
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   RateLimitTier
	}{
		{http.MethodPost, "/api/v1/verifications", TierPublic},
		{http.MethodPost, "/api/v1/verifications/confirm", TierPublic},
		{http.MethodGet, "/api/v1/verifications/01HXAMPLE", TierAdmin},
		{http.MethodGet, "/api/v1/ws", TierPublic},
		{http.MethodPost, "/api/v1/admin/login", TierLogin},
		{http.MethodPost, "/api/queues/login", TierLogin},
		{http.MethodGet, "/api/queues/login", TierAdmin},
		{http.MethodGet, "/api/queues/stats", TierAdmin},
		{http.MethodPost, "/api/queues/jobs/7/retry", TierAdmin},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := tierFor(req); got != tt.want {
			t.Errorf("tierFor(%s %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestClientKey_UntrustedProxyIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.10:4444"
	req.Header.Set("X-Forwarded-For", "10.0.0.99")

	if got := clientKey(req, nil); got != "203.0.113.10" {
		t.Errorf("expected direct peer IP, got %s", got)
	}
}

func TestClientKey_TrustedProxyUsesForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	if got := clientKey(req, []string{"10.0.0.0/8"}); got != "198.51.100.7" {
		t.Errorf("expected first forwarded hop, got %s", got)
	}
}
