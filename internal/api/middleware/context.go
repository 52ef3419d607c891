package middleware

import (
	"context"

	"github.com/Togather-Foundation/rsvp/internal/auth"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request correlation ID
	RequestIDKey contextKey = "request_id"

	claimsKey contextKey = "claims"
)

// ContextWithClaims attaches validated token claims to ctx.
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims set by JWTAuth, or nil.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// ActorFromContext returns the authenticated caller. ok is false on
// unauthenticated requests.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return auth.Actor{}, false
	}
	return auth.ActorFromClaims(claims), true
}
