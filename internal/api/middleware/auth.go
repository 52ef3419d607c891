package middleware

import (
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
)

// JWTAuth validates the bearer token in the Authorization header and stores
// its claims in the request context.
func JWTAuth(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing authorization header", problem.ErrUnauthorized, env,
					problem.WithDetail("No token, authorization denied"))
				return
			}

			token, err := auth.TokenFromHeader(authHeader)
			if err != nil || token == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid authorization format", problem.ErrUnauthorized, env,
					problem.WithDetail("Token is not valid"))
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid token", err, env,
					problem.WithDetail("Token is not valid"))
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects authenticated callers whose role lacks capability.
// It must run after JWTAuth.
func RequireCapability(capability auth.Capability, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}
			if !actor.Can(capability) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Insufficient permissions", problem.ErrForbidden, env,
					problem.WithDetail("Access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
