package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches the body served by the /health endpoint.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is the outcome of one probe.
type HealthCheckResult struct {
	URL       string
	Status    string
	IsHealthy bool
	LatencyMs int64
	Error     string
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout time.Duration
		url     string
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by the container HEALTHCHECK. It exits with code 0 if
the server reports "healthy" or "degraded", non-zero otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = defaultHealthURL()
			}
			result := performHealthCheck(cmd.Context(), url, timeout)
			if result.Error != "" {
				return fmt.Errorf("health check failed: %s", result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%dms)\n", result.Status, result.LatencyMs)
			if !result.IsHealthy {
				return fmt.Errorf("unhealthy: status=%s", result.Status)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	return cmd
}

func defaultHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "5000"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// performHealthCheck treats "degraded" as healthy: the job queue may be
// disabled while the API still serves requests.
func performHealthCheck(ctx context.Context, url string, timeout time.Duration) HealthCheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := HealthCheckResult{URL: url}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid response (status %d): %v", resp.StatusCode, err)
		return result
	}

	result.Status = body.Status
	result.IsHealthy = resp.StatusCode == http.StatusOK && (body.Status == "healthy" || body.Status == "degraded")
	return result
}
