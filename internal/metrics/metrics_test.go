package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"
)

func TestAppInfo(t *testing.T) {
	AppInfo.WithLabelValues("v1.0.0", "abc123", "2026-01-30").Set(1)
	require.Equal(t, float64(1), testutil.ToFloat64(AppInfo.WithLabelValues("v1.0.0", "abc123", "2026-01-30")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	wrapped := HTTPMiddleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/events/{param}", "200"))
	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/events/{param}", "200"))
	require.Equal(t, float64(3), after-before)
}

func TestHTTPMiddlewareUnmatchedRoute(t *testing.T) {
	wrapped := HTTPMiddleware(http.NotFoundHandler())

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	require.Equal(t, float64(1), after-before)
}

func TestHTTPMiddlewareStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Not Found", http.StatusNotFound},
		{"Internal Server Error", http.StatusInternalServerError},
		{"Unauthorized", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			rec := httptest.NewRecorder()
			HTTPMiddleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, tt.statusCode, rec.Code)
		})
	}
}

func TestDBCollector(t *testing.T) {
	collector := NewDBCollector(nil)
	collector.collect()
	collector.Stop()
	collector.Stop()
}

func TestDBCollectorStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewDBCollector(nil).Start(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestRecordQuery(t *testing.T) {
	RecordQuery("select", time.Now(), nil)
	require.NotZero(t, testutil.CollectAndCount(DBQueryDuration))

	before := testutil.ToFloat64(DBErrors.WithLabelValues("insert", "timeout"))
	RecordQuery("insert", time.Now(), errors.Join(errors.New("insert event"), context.DeadlineExceeded))
	require.Equal(t, float64(1), testutil.ToFloat64(DBErrors.WithLabelValues("insert", "timeout"))-before)

	missing := testutil.ToFloat64(DBErrors.WithLabelValues("select", "query_error"))
	RecordQuery("select", time.Now(), pgx.ErrNoRows)
	require.Equal(t, missing, testutil.ToFloat64(DBErrors.WithLabelValues("select", "query_error")))
}

func TestClassifyDBError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", context.Canceled, "canceled"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"duplicate registration", fmt.Errorf("insert registration: %w", &pgconn.PgError{Code: "23505"}), "unique_violation"},
		{"missing event", &pgconn.PgError{Code: "23503"}, "foreign_key_violation"},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, "invalid_input"},
		{"other", errors.New("boom"), "query_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyDBError(tc.err))
		})
	}
}

func TestResponseWriterDefaults(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}

	content := []byte("Hello, World!")
	_, _ = rw.Write(content)

	require.Equal(t, http.StatusOK, rw.statusCode)
	require.Equal(t, len(content), rw.bytesWritten)
}

func TestRiverMetricsHook(t *testing.T) {
	hook := NewRiverMetricsHook()
	ctx := context.Background()
	job := &rivertype.JobRow{ID: 42, Kind: "registration_confirmation"}

	queued := testutil.ToFloat64(NotificationsQueued.WithLabelValues("confirmation"))
	require.NoError(t, hook.InsertBegin(ctx, &rivertype.JobInsertParams{Kind: job.Kind}))
	require.Equal(t, queued+1, testutil.ToFloat64(NotificationsQueued.WithLabelValues("confirmation")))

	require.NoError(t, hook.WorkBegin(ctx, job))
	require.Equal(t, float64(1), testutil.ToFloat64(NotificationsInFlight.WithLabelValues("confirmation")))

	before := testutil.ToFloat64(NotificationAttempts.WithLabelValues("confirmation", "failed"))
	require.NoError(t, hook.WorkEnd(ctx, job, errors.New("smtp down")))
	require.Equal(t, float64(0), testutil.ToFloat64(NotificationsInFlight.WithLabelValues("confirmation")))
	require.Equal(t, before+1, testutil.ToFloat64(NotificationAttempts.WithLabelValues("confirmation", "failed")))
	require.Empty(t, hook.started)
}
