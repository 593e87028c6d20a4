package middleware

import (
	"context"
	"net/http"

	"github.com/BVSokolov/udemy-prostore/pkg/logger"
)

type contextKey string

const userIDKey contextKey = "user_id"

// IdentityResolver returns the id of the user behind r, or false for an
// anonymous request.
type IdentityResolver func(r *http.Request) (string, bool)

// Identify resolves the caller once per request and stores the user id in the
// context. Anonymous requests pass through untouched; rejecting them is up to
// the handler.
func Identify(resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := resolve(r); ok && userID != "" {
				ctx := WithUserID(r.Context(), userID)
				ctx = logger.WithUserID(ctx, userID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID stores an authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id stored by Identify, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
