package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/pharmacy-auth/internal/transport/http/middleware"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type AuthHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	SendCode(w http.ResponseWriter, r *http.Request)
	VerifyCode(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Health HealthHandler
	Auth   AuthHandler

	// App serves every guarded page: the upstream proxy, or placeholders.
	App http.Handler

	RequestIDMW func(http.Handler) http.Handler
	// RealIPMW rewrites RemoteAddr from forwarding headers; leave nil unless
	// it only trusts known proxies.
	RealIPMW func(http.Handler) http.Handler
	GuardMW     func(http.Handler) http.Handler
	CSRFMW      func(http.Handler) http.Handler

	// Optional rate limits
	RLLogin      func(http.Handler) http.Handler
	RLSendCode   func(http.Handler) http.Handler
	RLVerifyCode func(http.Handler) http.Handler
	RLLogout     func(http.Handler) http.Handler
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("nil Auth handler")
	}
	if deps.App == nil {
		return nil, fmt.Errorf("nil App handler")
	}
	if deps.GuardMW == nil {
		return nil, fmt.Errorf("nil Guard middleware")
	}

	r := chi.NewRouter()

	if deps.RequestIDMW != nil {
		r.Use(deps.RequestIDMW)
	}
	if deps.RealIPMW != nil {
		r.Use(deps.RealIPMW)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics)

	// --- Ops ---
	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	// --- Auth API ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		if deps.CSRFMW != nil {
			r.Use(deps.CSRFMW)
		}

		r.With(optional(deps.RLLogin)).Post("/login", deps.Auth.Login)
		r.With(optional(deps.RLSendCode)).Post("/send-code", deps.Auth.SendCode)
		r.With(optional(deps.RLVerifyCode)).Post("/verify-code", deps.Auth.VerifyCode)
		r.With(optional(deps.RLLogout)).Post("/logout", deps.Auth.Logout)
	})

	// --- Everything else goes through the route guard ---
	r.With(deps.GuardMW).Handle("/*", deps.App)

	return r, nil
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
