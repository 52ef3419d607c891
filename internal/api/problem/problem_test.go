package problem

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, res *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/events/abc", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("boom"), "development")

	require.Equal(t, "application/problem+json", res.Result().Header.Get("Content-Type"))
	body := decode(t, res)
	require.Equal(t, "boom", body.Detail)
	require.Equal(t, "/api/events/abc", body.Instance)
	require.Equal(t, http.StatusBadRequest, body.Status)
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServerError, "Server error", errors.New("pq: relation \"events\" does not exist"), "production")

	body := decode(t, res)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), body.Detail)
}

func TestWrite_ExplicitDetailIsKept(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/registrations", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeConflict, "Conflict", errors.New("duplicate key"), "production",
		WithDetail("already registered for this event"), WithFieldError("eventId", "already registered"))

	body := decode(t, res)
	require.Equal(t, "already registered for this event", body.Detail)
	require.Equal(t, map[string]string{"eventId": "already registered"}, body.Errors)
}

func TestWrite_LogsServerErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	ServerError(httptest.NewRecorder(), req, errors.New("db down"), "production")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "db down", entry["error"])
}

func TestWrite_LogsClientErrorsAtWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	req := httptest.NewRequest(http.MethodGet, "/api/events/x", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	Write(httptest.NewRecorder(), req, http.StatusNotFound, TypeNotFound, "Not found", ErrNotFound, "production")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
}
