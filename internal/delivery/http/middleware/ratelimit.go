package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	h "letterpress/internal/delivery/http/helpers"
	"letterpress/internal/ratelimit"
)

// ClientIP extracts the caller's address, preferring proxy headers so every
// instance behind a load balancer keys the same client identically.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns a wrapper that throttles requests per client IP. Exceeding
// the window limit gets a 429 with Retry-After; a broken limiter store fails
// open so the backing store cannot take the public endpoints down with it.
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Check(r.Context(), ClientIP(r))
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limiter unavailable", "err", err)
				next(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				retry := int(time.Until(res.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyRequests, "too many requests, slow down")
				return
			}
			next(w, r)
		}
	}
}
