package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/events":                         "/api/events",
		"/api/events/{id}":                    "/api/events/{param}",
		"/api/registrations/status/{eventId}": "/api/registrations/status/{param}",
		"/api/registrations/{registrationId}": "/api/registrations/{param}",
		"":                                    "",
		"api/events/{id}":                     "api/events/{id}",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizePath(in), in)
	}
}

func TestHTTPMiddleware_LabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/registrations/status/{eventId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := HTTPMiddleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/registrations/status/{param}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a1", "b2"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/registrations/status/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	require.Equal(t, before+2, testutil.ToFloat64(counter))

	unmatched := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, before+1, testutil.ToFloat64(unmatched))
}
