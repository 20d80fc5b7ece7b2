package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/amaumene/malsync/internal/api/envelope"
)

// AdminAuth only lets through requests carrying "Authorization: Bearer <token>"
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="malsync admin"`)
				_ = envelope.RenderStatus(w, r, envelope.ClassAdmin, http.StatusUnauthorized, map[string]string{
					"message": "Unauthorized",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
