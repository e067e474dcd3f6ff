package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const scrapeTokenQuery = "token"

// requireBearerToken guards operator endpoints such as /metrics. It accepts
// "Authorization: Bearer <token>" or a ?token= query parameter. When expected
// is empty the middleware is a no-op.
func requireBearerToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(scrapeTokenQuery))
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
