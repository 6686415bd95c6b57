package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/questlog/internal/auth"
	"github.com/dukerupert/questlog/internal/model"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "questlog_session"

// SessionLookup resolves a session token. It returns (nil, nil) for unknown
// or expired tokens.
type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

// SessionToken returns the token from the session cookie, falling back to an
// Authorization: Bearer header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// RequireAuth validates the session token and populates AuthContext.
// Unauthenticated requests get a JSON 401.
func RequireAuth(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal", "failed to validate session")
				return
			}
			if sess == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UserID:    sess.UserID,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
