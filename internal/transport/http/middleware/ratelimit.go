package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/redis"
	"github.com/baechuer/pharmacy-auth/internal/logger"
)

// RateLimiter is the shared (multi-instance) limiter, Redis in production.
type RateLimiter interface {
	Enabled() bool
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (redis.Decision, error)
}

// FixedWindowConfig defines the configuration for a fixed-window rate limit.
type FixedWindowConfig struct {
	Scope  string // e.g. "auth.login"
	Limit  int
	Window time.Duration
}

// RateLimit limits per client IP, taken from RemoteAddr only (see
// TrustedRealIP for proxies). With a shared limiter the window is kept in
// Redis; without one each instance keeps its own counters via httprate.
// Limiter errors fail open.
func RateLimit(limiter RateLimiter, cfg FixedWindowConfig, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "unknown"
	}

	if limiter == nil || !limiter.Enabled() {
		return httprate.Limit(
			cfg.Limit,
			cfg.Window,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return clientIP(r), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeErr(w, r, domain.ErrRateLimited(cfg.Scope))
			}),
		)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec, err := limiter.Allow(r.Context(), cfg.Scope, "ip:"+clientIP(r), cfg.Limit, cfg.Window)
			if err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).Str("scope", cfg.Scope).Msg("rate limiter unavailable; allowing")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))

			if !dec.Allowed {
				if dec.RetryAfter > 0 {
					secs := int((dec.RetryAfter + time.Second - 1) / time.Second)
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				writeErr(w, r, domain.ErrRateLimited(cfg.Scope))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr
// from trusted proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
