package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"

	checkTimeout = 2 * time.Second
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Database is the part of the pool the checks query.
type Database interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthChecker runs the database, migration and job queue checks.
type HealthChecker struct {
	db          Database
	riverClient *river.Client[pgx.Tx]
	version     string
	gitCommit   string
	now         func() time.Time
}

// NewHealthChecker creates a health checker. riverClient is nil when background jobs are disabled.
func NewHealthChecker(db Database, riverClient *river.Client[pgx.Tx], version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		db:          db,
		riverClient: riverClient,
		version:     version,
		gitCommit:   gitCommit,
		now:         time.Now,
	}
}

// Health returns the detailed health report. Any failing check answers 503.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "shutting_down"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
			"job_queue":  h.checkJobQueue(ctx),
		}

		overall, statusCode, gauge := "healthy", http.StatusOK, 2.0
		for name, check := range checks {
			metrics.HealthCheckStatus.WithLabelValues(name).Set(checkValue(check.Status))
			metrics.HealthCheckLatency.WithLabelValues(name).Set(float64(check.LatencyMs))
			switch {
			case check.Status == checkFail:
				overall, statusCode, gauge = "unhealthy", http.StatusServiceUnavailable, 0
			case check.Status == checkWarn && overall == "healthy":
				overall, gauge = "degraded", 1
			}
		}
		metrics.HealthStatus.Set(gauge)

		writeJSON(w, statusCode, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
	}
}

// Readyz reports ready once the database answers.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check := h.checkDatabase(r.Context()); check.Status == checkFail {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
	})
}

// checkDatabase verifies PostgreSQL connection and query execution
func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()

	if h.db == nil {
		return CheckResult{
			Status:  checkFail,
			Message: "Database pool not initialized",
			Details: map[string]any{
				"remediation": "Check that DATABASE_URL is set correctly and PostgreSQL is running",
			},
		}
	}

	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var result int
	err := h.db.QueryRow(dbCtx, "SELECT 1").Scan(&result)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		message := "Database query failed"
		details := map[string]any{"error": err.Error()}

		switch {
		case errors.Is(err, context.DeadlineExceeded) || dbCtx.Err() == context.DeadlineExceeded:
			message = "Database query timed out after 2 seconds"
			details["remediation"] = "Check PostgreSQL performance, network latency, or increase timeout"
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
			details["remediation"] = "Verify PostgreSQL is running and DATABASE_URL host/port are correct"
		case strings.Contains(err.Error(), "authentication failed"):
			message = "Database authentication failed"
			details["remediation"] = "Verify DATABASE_URL username and password are correct"
		default:
			details["remediation"] = "Check DATABASE_URL environment variable and PostgreSQL service status"
		}

		return CheckResult{Status: checkFail, Message: message, LatencyMs: latency, Details: details}
	}

	details := map[string]any{}
	if pool, ok := h.db.(*pgxpool.Pool); ok {
		stats := pool.Stat()
		details["max_connections"] = stats.MaxConns()
		details["total_connections"] = stats.TotalConns()
		details["idle_connections"] = stats.IdleConns()
		details["acquired_connections"] = stats.AcquiredConns()
	}

	return CheckResult{
		Status:    checkPass,
		Message:   "PostgreSQL connection successful",
		LatencyMs: latency,
		Details:   details,
	}
}

// checkMigrations fails when the schema is missing or left dirty by a failed migration.
func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	start := time.Now()

	if h.db == nil {
		return CheckResult{Status: checkFail, Message: "Database pool not initialized"}
	}

	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var version int64
	var dirty bool
	err := h.db.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		message := "Failed to query migration version"
		details := map[string]any{"error": err.Error()}
		if errors.Is(err, pgx.ErrNoRows) || strings.Contains(err.Error(), "does not exist") {
			message = "Migrations not applied"
			details["remediation"] = "Run: server migrate up"
		}
		return CheckResult{Status: checkFail, Message: message, LatencyMs: latency, Details: details}
	}

	if dirty {
		return CheckResult{
			Status:    checkFail,
			Message:   "Database in dirty migration state - manual intervention required",
			LatencyMs: latency,
			Details: map[string]any{
				"version": version,
				"dirty":   dirty,
				"action":  "Do NOT run new migrations until this is resolved",
			},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   fmt.Sprintf("Migrations applied successfully (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

// checkJobQueue verifies the River job table is reachable. Jobs are optional,
// so a disabled queue only warns.
func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	start := time.Now()

	if h.riverClient == nil {
		return CheckResult{
			Status:  checkWarn,
			Message: "Job queue disabled; notifications are sent inline",
		}
	}
	if h.db == nil {
		return CheckResult{Status: checkFail, Message: "Database pool not initialized"}
	}

	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var pending int64
	err := h.db.QueryRow(jobCtx, `SELECT COUNT(*) FROM river_job WHERE state = ANY($1)`, []string{"available", "running", "retryable"}).Scan(&pending)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{
			Status:    checkFail,
			Message:   "Failed to query job queue",
			LatencyMs: latency,
			Details: map[string]any{
				"error":       err.Error(),
				"remediation": "Check that River migrations ran and the river_job table exists",
			},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   "River job queue operational",
		LatencyMs: latency,
		Details:   map[string]any{"pending_jobs": pending},
	}
}

func checkValue(status string) float64 {
	switch status {
	case checkPass:
		return 2
	case checkWarn:
		return 1
	default:
		return 0
	}
}

// Healthz returns a lightweight liveness response
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
}

type healthResponse struct {
	Status string `json:"status"`
}
