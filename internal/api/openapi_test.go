package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	handler := OpenAPIHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "3.0.3", doc.OpenAPI)

	for path, methods := range map[string][]string{
		"/api/auth/register":                  {"post"},
		"/api/auth/login":                     {"post"},
		"/api/events":                         {"get", "post"},
		"/api/events/{id}":                    {"get", "put", "delete"},
		"/api/registrations":                  {"post"},
		"/api/registrations/{eventId}":        {"get"},
		"/api/registrations/{registrationId}": {"delete"},
		"/api/registrations/status/{eventId}": {"get"},
	} {
		require.Contains(t, doc.Paths, path)
		for _, method := range methods {
			require.Contains(t, doc.Paths[path], method, "%s %s", method, path)
		}
	}
}

func TestOpenAPIHandler_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		OpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(method, "/api/openapi.json", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestOpenAPIHandler_Concurrent(t *testing.T) {
	handler := OpenAPIHandler()

	var wg sync.WaitGroup
	bodies := make([]string, 10)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
			bodies[i] = rec.Body.String()
		}(i)
	}
	wg.Wait()

	for _, body := range bodies[1:] {
		require.Equal(t, bodies[0], body)
	}
}
