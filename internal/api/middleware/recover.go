package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
)

// Recover turns handler panics into a sanitized 500. http.ErrAbortHandler is
// re-raised so the server can drop the connection.
func Recover(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LoggerFromContext(r.Context()).Error().
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				problem.ServerError(w, r, fmt.Errorf("panic: %v", rec), env)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
