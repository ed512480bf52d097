package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	h "letterpress/internal/delivery/http/helpers"
)

// RequireCronSecret returns a wrapper that gates scheduler trigger endpoints
// behind a shared bearer secret. The comparison is constant time so the
// secret cannot be probed byte by byte, and an empty configured secret
// disables the endpoint entirely rather than leaving it open.
func RequireCronSecret(secret string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "scheduler endpoint disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid authorization format")
				return
			}
			got := strings.TrimSpace(auth[len(prefix):])
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid scheduler secret")
				return
			}
			next(w, r)
		}
	}
}
