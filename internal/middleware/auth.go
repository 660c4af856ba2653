package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"pathways/internal/auth"
	"pathways/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// IdentityKey is the context key for the authenticated identity.
const IdentityKey contextKey = "identity"

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

// SessionGetter looks up the server-side session behind a token.
type SessionGetter interface {
	Get(ctx context.Context, tokenID string) (*session.Data, error)
}

// BearerToken returns the token from an "Authorization: Bearer" header, or
// "" when there is none.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid bearer token whose session
// is still live. A token survives only as long as its session: logging out
// or changing the password revokes it before it expires.
func RequireAuth(tokens TokenParser, sessions SessionGetter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			id, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			data, err := sessions.Get(r.Context(), id.TokenID)
			if err != nil {
				log.Error("session lookup", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			if data == nil || data.UserID != id.UserID {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// IdentityFromCtx extracts the authenticated identity from the request
// context.
func IdentityFromCtx(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(auth.Identity)
	return id, ok
}

// WithIdentity returns ctx carrying id, as RequireAuth would set it.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}
