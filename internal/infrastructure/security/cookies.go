package security

import (
	"net"
	"net/http"
	"strings"
	"time"
)

const hostPrefix = "__Host-"

// CookieConfig describes how the session cookie is scoped.
type CookieConfig struct {
	Name       string   // base name, e.g. "session"
	Secure     bool     // prod=true, dev=false
	Domain     string   // optional parent domain (COOKIE_DOMAIN)
	ClearPaths []string // extra paths swept on logout; "/" is always included
}

// CookieName is the name the session cookie is set under.
// __Host- requires Secure, Path=/ and no Domain attribute.
func (c CookieConfig) CookieName() string {
	if c.Secure && c.Domain == "" {
		return hostPrefix + c.Name
	}
	return c.Name
}

func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName(),
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ReadSessionCookie prefers the __Host- cookie and falls back to the plain
// name (local non-HTTPS development, or a Domain-scoped deployment).
func ReadSessionCookie(r *http.Request, cfg CookieConfig) (string, error) {
	if c, err := r.Cookie(hostPrefix + cfg.Name); err == nil && c.Value != "" {
		return c.Value, nil
	}
	c, err := r.Cookie(cfg.Name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// ClearVariants returns one expiring cookie for every scoping the session
// cookie may have been set with: name prefix, domain, path, Secure,
// HttpOnly and SameSite. A browser only drops a cookie when the clearing
// Set-Cookie matches its original scope, so every combination is emitted.
func ClearVariants(cfg CookieConfig, host string) []*http.Cookie {
	domains := clearDomains(host, cfg.Domain)
	paths := clearPaths(cfg.ClearPaths)
	sameSites := []http.SameSite{http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode}

	var out []*http.Cookie
	for _, name := range []string{cfg.Name, hostPrefix + cfg.Name} {
		for _, domain := range domains {
			for _, path := range paths {
				for _, secure := range []bool{false, true} {
					if name != cfg.Name && (!secure || path != "/" || domain != "") {
						continue
					}
					for _, httpOnly := range []bool{true, false} {
						for _, ss := range sameSites {
							// Browsers reject SameSite=None without Secure.
							if ss == http.SameSiteNoneMode && !secure {
								continue
							}
							out = append(out, &http.Cookie{
								Name:     name,
								Value:    "",
								Path:     path,
								Domain:   domain,
								Secure:   secure,
								HttpOnly: httpOnly,
								SameSite: ss,
								MaxAge:   -1,
								Expires:  time.Unix(0, 0).UTC(),
							})
						}
					}
				}
			}
		}
	}
	return out
}

// ClearSessionCookies writes every clear variant for the request's host.
func ClearSessionCookies(w http.ResponseWriter, r *http.Request, cfg CookieConfig) {
	for _, c := range ClearVariants(cfg, r.Host) {
		http.SetCookie(w, c)
	}
}

// NoCacheHeaders marks a response as never cacheable and asks the browser
// to drop site cookies and cache.
func NoCacheHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Clear-Site-Data", `"cache", "cookies"`)
}

// clearDomains yields "" (host-only) plus the bare and www. forms of the
// request host and of the configured cookie domain.
func clearDomains(host, configured string) []string {
	out := []string{""}
	seen := map[string]bool{"": true}
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, h := range []string{hostOnly(host), strings.TrimPrefix(strings.ToLower(strings.TrimSpace(configured)), ".")} {
		if h == "" || h == "localhost" || net.ParseIP(h) != nil || !strings.Contains(h, ".") {
			continue
		}
		bare := strings.TrimPrefix(h, "www.")
		add(bare)
		add("www." + bare)
	}
	return out
}

func clearPaths(extra []string) []string {
	out := []string{"/"}
	seen := map[string]bool{"/": true}
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" || !strings.HasPrefix(p, "/") || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func hostOnly(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}
