package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

// APIKey returns middleware that requires the static key in the X-API-Key
// header. An empty apiKey disables the check.
func APIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if key == "" {
				writeUnauthorized(w, "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				writeUnauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionResolver looks up a session token. *session.Manager satisfies it.
type SessionResolver interface {
	Lookup(ctx context.Context, token string) (domain.Session, error)
}

// Session returns middleware that resolves the caller's session token and
// stores the session in the request context. Requests without a valid
// session are rejected with 401.
func Session(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing session token")
				return
			}
			sess, err := resolver.Lookup(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid session token")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// extractToken reads the session token from the Authorization header (Bearer
// scheme), the X-Session-Token header, or the token query parameter. Browsers
// cannot set headers on a websocket handshake, hence the query fallback.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if t := r.Header.Get("X-Session-Token"); t != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
