package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		responseBody  any
		expectHealthy bool
		expectError   bool
		expectStatus  string
	}{
		{
			name:          "healthy server",
			statusCode:    http.StatusOK,
			responseBody:  HealthResponse{Status: "healthy", Checks: map[string]CheckResult{"database": {Status: "pass"}}},
			expectHealthy: true,
			expectStatus:  "healthy",
		},
		{
			name:          "degraded server is still serving",
			statusCode:    http.StatusOK,
			responseBody:  HealthResponse{Status: "degraded", Checks: map[string]CheckResult{"job_queue": {Status: "warn"}}},
			expectHealthy: true,
			expectStatus:  "degraded",
		},
		{
			name:         "unhealthy server (503)",
			statusCode:   http.StatusServiceUnavailable,
			responseBody: HealthResponse{Status: "unhealthy"},
			expectStatus: "unhealthy",
		},
		{
			name:         "invalid response",
			statusCode:   http.StatusOK,
			responseBody: "not json",
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if str, ok := tt.responseBody.(string); ok {
					fmt.Fprint(w, str)
					return
				}
				_ = json.NewEncoder(w).Encode(tt.responseBody)
			}))
			defer server.Close()

			result := performHealthCheck(context.Background(), server.URL, 5*time.Second)

			require.Equal(t, tt.expectHealthy, result.IsHealthy)
			if tt.expectError {
				require.NotEmpty(t, result.Error)
				return
			}
			require.Empty(t, result.Error)
			require.Equal(t, tt.expectStatus, result.Status)
			require.GreaterOrEqual(t, result.LatencyMs, int64(0))
		})
	}
}

func TestPerformHealthCheckTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	result := performHealthCheck(context.Background(), server.URL, 50*time.Millisecond)
	require.NotEmpty(t, result.Error)
	require.False(t, result.IsHealthy)
}

func TestDefaultHealthURL(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	require.Equal(t, "http://localhost:9000/health", defaultHealthURL())

	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "")
	require.Equal(t, "http://localhost:5000/health", defaultHealthURL())
}

func TestHealthcheckCommandFailsWhenUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "unhealthy"})
	}))
	defer server.Close()

	_, err := execute(t, "healthcheck", "--url", server.URL)
	require.ErrorContains(t, err, "unhealthy")
}
