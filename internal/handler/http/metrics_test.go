package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"catchup-feed/internal/handler/http/pathutil"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_PathNormalization(t *testing.T) {
	httpRequestsTotal.Reset()
	httpRequestDuration.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	tests := []struct {
		name string
		path string
	}{
		{"known status route", "/status/sources"},
		{"known health route", "/health"},
		{"scan-style path collapses to unmatched", "/status/sources/123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
		})
	}
}

func TestMetricsMiddleware_CardinalityReduction(t *testing.T) {
	httpRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Scan-style probing traffic against unknown paths must not create a
	// distinct metric series per path.
	scanPaths := []string{"/.env", "/wp-admin", "/status/sources/1", "/admin/config"}
	for _, p := range scanPaths {
		req := httptest.NewRequest("GET", p, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	count := testutil.CollectAndCount(httpRequestsTotal)
	if count == 0 {
		t.Error("expected metrics to be recorded, got 0")
	}
	if count > pathutil.ExpectedCardinality() {
		t.Errorf("expected scan traffic to collapse into the unmatched bucket, got %d series", count)
	}
}

func TestMetricsMiddleware_ActiveConnections(t *testing.T) {
	activeConnections.Set(0)

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := testutil.ToFloat64(activeConnections); got != 0 {
		t.Errorf("expected active connections to settle back to 0, got %v", got)
	}
}

func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	httpRequestsTotal.Reset()

	tests := []struct {
		name       string
		statusCode int
	}{
		{"success 200", http.StatusOK},
		{"not found 404", http.StatusNotFound},
		{"server error 500", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			req := httptest.NewRequest("GET", "/status/runs", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, w.Code)
			}
		})
	}
}

func TestMetricsMiddleware_ResponseSize(t *testing.T) {
	httpResponseSize.Reset()

	responseBody := []byte(`{"runs":[]}`)

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(responseBody)
	}))

	req := httptest.NewRequest("GET", "/status/runs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Body.Len() != len(responseBody) {
		t.Errorf("expected response size %d, got %d", len(responseBody), w.Body.Len())
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}

	rw.WriteHeader(http.StatusCreated)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status code %d, got %d", http.StatusCreated, rw.statusCode)
	}

	data := []byte("test response")
	n, err := rw.Write(data)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected to write %d bytes, wrote %d", len(data), n)
	}
	if rw.size != len(data) {
		t.Errorf("expected size %d, got %d", len(data), rw.size)
	}
}

func TestMetricsMiddleware_Integration(t *testing.T) {
	httpRequestsTotal.Reset()
	httpRequestDuration.Reset()
	httpRequestSize.Reset()
	httpResponseSize.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	testPaths := []string{
		"/status/sources",
		"/status/runs",
		"/status/moderation",
		"/health",
		"/ready",
		"/live",
		"/metrics",
		"/status/sources/123", // unmatched, collapses into one bucket
	}

	for _, p := range testPaths {
		req := httptest.NewRequest("GET", p, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("request %s failed with status %d", p, rec.Code)
		}
	}

	count := testutil.CollectAndCount(httpRequestsTotal)
	if count == 0 {
		t.Error("expected metrics to be recorded, got 0")
	}
	if count > pathutil.ExpectedCardinality() {
		t.Errorf("expected at most %d series (7 known routes + unmatched), got %d", pathutil.ExpectedCardinality(), count)
	}
}

func TestMetricsHandler(t *testing.T) {
	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status OK; got %v", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("metrics endpoint returned empty body")
	}
}
