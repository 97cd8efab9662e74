package proxy

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/logger"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/middleware"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/response"
)

// Identity headers the upstream application trusts. Client supplied copies
// are always dropped.
const (
	HeaderAuthIdentifier = "X-Auth-Identifier"
	HeaderAuthRole       = "X-Auth-Role"
)

// New creates a reverse proxy to the pharmacy application. It must sit
// behind middleware.Guard, which puts the caller's identity in the context.
// targetHost: "http://pharmacy-app:3000"
func New(targetHost string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(targetHost)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("proxy: target must be an absolute URL")
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			// Host Header: set to target's host so upstream feels like it's being called directly
			pr.Out.Host = target.Host

			pr.Out.Header.Del(HeaderAuthIdentifier)
			pr.Out.Header.Del(HeaderAuthRole)
			if id, ok := middleware.IdentifierFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderAuthIdentifier, id)
			}
			if role, ok := middleware.RoleFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderAuthRole, string(role))
			}

			if reqID := response.RequestIDFromContext(pr.In); reqID != "" {
				pr.Out.Header.Set(middleware.HeaderXRequestID, reqID)
			}
		},
	}

	// Upstream down / timeout
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithCtx(r.Context()).Error().
			Err(err).
			Str("target", target.Host).
			Str("path", r.URL.Path).
			Msg("upstream_proxy_error")

		response.WriteError(w, r, domain.ErrUpstreamUnavailable(err))
	}

	return proxy, nil
}
