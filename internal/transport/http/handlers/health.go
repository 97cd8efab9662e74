package http_handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/logger"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/response"
)

// Check is one readiness dependency (database, redis, broker).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		if c.Ping == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			logger.WithCtx(r.Context()).Warn().Err(err).Str("dependency", c.Name).Msg("readiness check failed")
			response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  c.Name + " unavailable",
			})
			return
		}
	}

	response.OK(w, map[string]string{"status": "ready"})
}
