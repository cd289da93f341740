package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	TokenContextKey contextKey = "token"

	userSlotKey contextKey = "user-slot"
)

// SessionResolver maps a session token to a username.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// AdminChecker reports whether a user may use the admin endpoints.
type AdminChecker interface {
	IsAdmin(username string) bool
}

// AuthMiddleware resolves session tokens for authenticated endpoints.
type AuthMiddleware struct {
	sessions   SessionResolver
	admins     AdminChecker
	invalidErr error
}

// NewAuthMiddleware creates a new auth middleware. invalidErr is the error
// the resolver returns for unknown or expired tokens.
func NewAuthMiddleware(sessions SessionResolver, admins AdminChecker, invalidErr error) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, admins: admins, invalidErr: invalidErr}
}

// RequireSession rejects requests without a valid session token and puts the
// username into the request context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		username, err := m.sessions.Resolve(r.Context(), token)
		if err != nil {
			if m.invalidErr != nil && errors.Is(err, m.invalidErr) {
				jsonError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			jsonError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}

		if slot, ok := r.Context().Value(userSlotKey).(*string); ok {
			*slot = username
		}

		ctx := context.WithValue(r.Context(), UserContextKey, username)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireSession.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := GetUserFromContext(r.Context())
		if username == "" || !m.admins.IsAdmin(username) {
			jsonError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest reads the token from the Authorization header, or from the
// token query parameter for WebSocket clients that cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated username from the request context.
func GetUserFromContext(ctx context.Context) string {
	username, _ := ctx.Value(UserContextKey).(string)
	return username
}

// GetTokenFromContext retrieves the session token from the request context.
func GetTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// withUserSlot lets an outer middleware learn the username resolved further in.
func withUserSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, userSlotKey, slot)
}
