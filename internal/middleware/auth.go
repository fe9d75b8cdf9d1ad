package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bryanwahyu/pdaudit/internal/infra/secrets"
)

type contextKey string

const (
	ClientKey contextKey = "client"
	APIKeyKey contextKey = "api_key"
)

// public paths skip authentication and rate limiting
func isPublic(path string) bool {
	return path == "/health" || path == "/ready" || path == "/live" || path == "/metrics"
}

// APIKeyAuth validates API key from Authorization or X-API-Key header.
// validKeys maps a client name to its key; a bcrypt hash is verified with
// secrets.Verify, anything else is compared in constant time.
// An empty map disables authentication.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(validKeys) == 0 || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				auth = r.Header.Get("X-API-Key")
			}
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			client, ok := matchKey(validKeys, apiKey)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func matchKey(validKeys map[string]string, apiKey string) (string, bool) {
	for client, key := range validKeys {
		if secrets.IsHash(key) {
			if secrets.Verify(apiKey, key) == nil {
				return client, true
			}
			continue
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return client, true
		}
	}
	return "", false
}

// GetClientFromContext extracts the authenticated client name.
func GetClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(ClientKey).(string); ok {
		return c
	}
	return ""
}
