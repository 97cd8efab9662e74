package response

import (
	"net/http"

	appCtx "github.com/baechuer/pharmacy-auth/internal/pkg/context"
)

// RequestIDFromContext returns the id set by middleware.RequestID, if any.
func RequestIDFromContext(r *http.Request) string {
	return appCtx.GetRequestID(r.Context())
}
