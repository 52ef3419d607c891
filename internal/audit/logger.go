package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record for a state-changing operation.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ActorRole    string            `json:"actor_role,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes audit entries as a nested "audit" object on a zerolog logger.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("component", "audit").Logger()}
}

// Nop returns a logger that discards every entry.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Log writes entry, filling the timestamp and the client IP carried by ctx when missing.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIP(ctx)
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	evt := l.logger.Info()
	if entry.Status == StatusFailure {
		evt = l.logger.Warn()
	}
	evt.Interface("audit", entry).Msg(entry.Action)
}

type contextKey string

const clientIPKey contextKey = "auditClientIP"

// WithClientIP stores the caller address for entries logged under ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// ExtractClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the
// remote host, in that order.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware stores the client IP in the request context for audit entries.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), ExtractClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
