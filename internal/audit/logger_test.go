package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) (map[string]json.RawMessage, Entry) {
	t.Helper()
	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &wrapper))
	raw, ok := wrapper["audit"]
	require.True(t, ok, "missing audit field in %s", buf.String())
	var entry Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	return wrapper, entry
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	ctx := WithClientIP(context.Background(), "192.168.1.1")
	logger.Log(ctx, Entry{
		Action:       "event.update",
		Actor:        "01HYX3KQW7ERTV9XNBM2P8QJZF",
		ActorRole:    "organizer",
		ResourceType: "event",
		ResourceID:   "01HYX3KQW7ERTV9XNBM2P8QJZG",
	})

	wrapper, entry := decodeEntry(t, &buf)
	require.Equal(t, "event.update", entry.Action)
	require.Equal(t, "192.168.1.1", entry.IPAddress)
	require.Equal(t, StatusSuccess, entry.Status)
	require.False(t, entry.Timestamp.IsZero())
	require.JSONEq(t, `"info"`, string(wrapper["level"]))
	require.JSONEq(t, `"audit"`, string(wrapper["component"]))
}

func TestLogger_LogFailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Log(context.Background(), Entry{Action: "event.delete", Status: StatusFailure, Details: map[string]string{"reason": "forbidden"}})

	wrapper, entry := decodeEntry(t, &buf)
	require.Equal(t, "forbidden", entry.Details["reason"])
	require.JSONEq(t, `"warn"`, string(wrapper["level"]))
}

func TestLogger_NilIsSafe(t *testing.T) {
	var logger *Logger
	logger.Log(context.Background(), Entry{Action: "noop"})
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:1234", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:1234", want: "198.51.100.4"},
		{name: "remote addr", remote: "10.0.0.2:1234", want: "10.0.0.2"},
		{name: "remote without port", remote: "10.0.0.2", want: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, ExtractClientIP(req))
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "127.0.0.1", seen)
}
