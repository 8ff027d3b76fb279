package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStoreHealthChecker struct {
	pingErr error
	cbState string
}

func (f *fakeStoreHealthChecker) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeStoreHealthChecker) CircuitBreakerState() string {
	if f.cbState == "" {
		return "closed"
	}
	return f.cbState
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		store          StoreHealthChecker
		expectedStatus int
		expectHealthy  string
	}{
		{
			name:           "reachable store",
			store:          &fakeStoreHealthChecker{},
			expectedStatus: http.StatusOK,
			expectHealthy:  "healthy",
		},
		{
			name:           "unreachable store",
			store:          &fakeStoreHealthChecker{pingErr: errors.New("connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
			expectHealthy:  "unhealthy",
		},
		{
			name:           "store circuit breaker open",
			store:          &fakeStoreHealthChecker{cbState: "open"},
			expectedStatus: http.StatusOK,
			expectHealthy:  "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &HealthHandler{Store: tt.store, Version: "test-version"}

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response HealthResponse
			err := json.NewDecoder(rec.Body).Decode(&response)
			require.NoError(t, err)

			assert.Equal(t, tt.expectHealthy, response.Status)
			assert.Equal(t, "test-version", response.Version)
			assert.NotEmpty(t, response.Timestamp)
			assert.Contains(t, response.Checks, "store")
		})
	}
}

func TestHealthHandler_NoStoreConfigured(t *testing.T) {
	handler := &HealthHandler{Store: nil, Version: "test-version"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "not configured", response.Checks["store"].Message)
}

func TestHealthHandler_DegradedCircuitBreaker(t *testing.T) {
	handler := &HealthHandler{Store: &fakeStoreHealthChecker{cbState: "half-open"}, Version: "test-version"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	storeCheck := response.Checks["store"]
	assert.Equal(t, "degraded", storeCheck.Status)
	assert.Equal(t, "half-open", storeCheck.Details["circuit_breaker"])
}

func TestHealthHandler_CacheControl(t *testing.T) {
	handler := &HealthHandler{Store: &fakeStoreHealthChecker{}, Version: "test-version"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		store          StoreHealthChecker
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "ready",
			store:          &fakeStoreHealthChecker{},
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "store not ready",
			store:          &fakeStoreHealthChecker{pingErr: errors.New("timeout")},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &ReadyHandler{Store: tt.store}

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestReadyHandler_NoStoreConfigured(t *testing.T) {
	handler := &ReadyHandler{Store: nil}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store not configured")
}

func TestLiveHandler_ServeHTTP(t *testing.T) {
	handler := &LiveHandler{}

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}
