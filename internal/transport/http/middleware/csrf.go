package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// CSRFProtection validates Origin/Referer headers for cookie-based endpoints.
// An empty allow-list disables the check (same-origin deployments).
//
// Apply to endpoints that:
// 1. Set or clear the session cookie (login, verify-code, logout)
// 2. Perform state-changing operations
func CSRFProtection(allowedOrigins []string, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	// Build a set of allowed hosts for fast lookup
	allowedHosts := make(map[string]struct{})
	for _, origin := range allowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			allowedHosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(allowedHosts) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only validate for state-changing methods
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// Get Origin header first (preferred)
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}
			if origin == "" {
				writeErr(w, r, domain.ErrCSRFRejected("missing_origin"))
				return
			}

			u, err := url.Parse(origin)
			if err != nil || u.Host == "" {
				writeErr(w, r, domain.ErrCSRFRejected("invalid_origin"))
				return
			}

			if _, ok := allowedHosts[strings.ToLower(u.Host)]; !ok {
				writeErr(w, r, domain.ErrCSRFRejected("origin_not_allowed"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
