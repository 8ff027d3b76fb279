package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catchup-feed/internal/handler/http/middleware"
)

func TestStartRateLimitCleanup_StopsOnContextCancel(t *testing.T) {
	limiter := middleware.NewRateLimiter(5, 50*time.Millisecond, &middleware.RemoteAddrExtractor{})
	ctx, cancel := context.WithCancel(context.Background())

	StartRateLimitCleanup(ctx, limiter, 10*time.Millisecond, "test")

	req := httptest.NewRequest(http.MethodGet, "/status/sources", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rr := httptest.NewRecorder()
	limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}

	// Let the cleanup ticker fire at least once before shutting it down; this
	// test asserts the goroutine exits cleanly, not a particular eviction count.
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
}
