package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(h http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLimitEnforcesBurst(t *testing.T) {
	h := limitedHandler(NewRateLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		if rec := doRequest(h, "/api/v1/workspaces", "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := doRequest(h, "/api/v1/workspaces", "10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}

	// A different client has its own bucket.
	if rec := doRequest(h, "/api/v1/workspaces", "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestLimitSharesBucketAcrossPorts(t *testing.T) {
	h := limitedHandler(NewRateLimiter(0.001, 1))

	if rec := doRequest(h, "/api/v1/workspaces", "10.0.0.1:1111"); rec.Code != http.StatusOK {
		t.Fatalf("first connection status = %d, want 200", rec.Code)
	}
	if rec := doRequest(h, "/api/v1/workspaces", "10.0.0.1:2222"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second connection from same host status = %d, want 429", rec.Code)
	}
}

func TestLimitExemptsHealthEndpoints(t *testing.T) {
	h := limitedHandler(NewRateLimiter(0.001, 1))

	// Exhaust the bucket first.
	doRequest(h, "/api/v1/workspaces", "10.0.0.1:1234")

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := doRequest(h, path, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
