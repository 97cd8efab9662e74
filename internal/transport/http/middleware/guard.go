package middleware

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/security"
	"github.com/baechuer/pharmacy-auth/internal/logger"
)

// SessionValidator checks a session token, including revocation.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (auth.SessionClaims, error)
}

type GuardConfig struct {
	Cookie security.CookieConfig

	// Public paths. "/" matches only the root; every other entry is a
	// segment-aware prefix.
	Public []string
	// Public pages a signed-in user is bounced away from.
	AuthPages []string

	LoginPath string
}

// DefaultGuardConfig returns the pharmacy site's public allow-list.
func DefaultGuardConfig(cookie security.CookieConfig) GuardConfig {
	return GuardConfig{
		Cookie: cookie,
		Public: []string{
			// marketing
			"/", "/about", "/contact", "/services", "/faq",
			// password recovery
			"/forgot-password", "/reset-password",
			// static assets
			"/static/", "/assets/", "/images/", "/favicon.ico", "/robots.txt",
			// auth API + ops
			"/api/auth/", "/healthz", "/readyz", "/metrics",
		},
		AuthPages: []string{"/login", "/register"},
		LoginPath: "/login",
	}
}

// Guard decides per request whether to allow, redirect to login, or
// redirect to the caller's own dashboard. It keeps no state between requests.
func Guard(sessions SessionValidator, cfg GuardConfig, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := cleanPath(r.URL.Path)
			log := logger.WithCtx(r.Context())

			claims, authed, err := sessionFromRequest(r, sessions, cfg.Cookie)
			if err != nil {
				// Store failure: the token may be fine but its revocation
				// status is unknown. Public pages stay anonymous; protected
				// pages are refused without touching the cookie.
				log.Error().Err(err).Str("path", p).Msg("guard: session check failed")
				if isPublic(p, cfg.Public) || isPublic(p, cfg.AuthPages) {
					next.ServeHTTP(w, r)
					return
				}
				writeErr(w, r, err)
				return
			}

			if authed {
				r = r.WithContext(WithUser(r.Context(), claims.Identifier, claims.Role))
			}

			switch {
			case isPublic(p, cfg.AuthPages):
				if authed {
					GuardRedirectsTotal.WithLabelValues("already_authenticated").Inc()
					redirect(w, r, domain.DashboardFor(claims.Role))
					return
				}
				next.ServeHTTP(w, r)

			case isPublic(p, cfg.Public):
				next.ServeHTTP(w, r)

			case !authed:
				GuardRedirectsTotal.WithLabelValues("unauthenticated").Inc()
				security.ClearSessionCookies(w, r, cfg.Cookie)
				redirect(w, r, loginURL(cfg.LoginPath, r.URL))

			case !domain.CanAccess(claims.Role, p):
				GuardRedirectsTotal.WithLabelValues("wrong_role").Inc()
				log.Info().
					Str("role", string(claims.Role)).
					Str("path", p).
					Msg("guard: role not allowed, redirecting to dashboard")
				redirect(w, r, domain.DashboardFor(claims.Role))

			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// sessionFromRequest returns authed=false for a missing or rejected token.
// Only infrastructure failures surface as err.
func sessionFromRequest(r *http.Request, sessions SessionValidator, cookie security.CookieConfig) (auth.SessionClaims, bool, error) {
	raw, err := security.ReadSessionCookie(r, cookie)
	if err != nil || raw == "" {
		return auth.SessionClaims{}, false, nil
	}

	claims, err := sessions.ValidateSession(r.Context(), raw)
	if err != nil {
		if domain.Is(err, domain.CodeTokenInvalid) || domain.Is(err, domain.CodeTokenMissing) {
			return auth.SessionClaims{}, false, nil
		}
		return auth.SessionClaims{}, false, err
	}
	return claims, true, nil
}

func isPublic(p string, list []string) bool {
	for _, entry := range list {
		if entry == "/" {
			if p == "/" {
				return true
			}
			continue
		}
		if domain.HasPathPrefix(p, entry) {
			return true
		}
	}
	return false
}

// cleanPath collapses dot segments so "/static/../admin" is classified as
// "/admin".
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cp := path.Clean(p)
	// keep a trailing slash, it matters for directory-style prefixes
	if p[len(p)-1] == '/' && cp != "/" {
		cp += "/"
	}
	return cp
}

func loginURL(loginPath string, u *url.URL) string {
	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return loginPath + "?next=" + url.QueryEscape(target)
}

// redirect uses 302 for safe methods and 303 otherwise so a POST is never
// replayed against the target.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	status := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		status = http.StatusFound
	}
	http.Redirect(w, r, to, status)
}
