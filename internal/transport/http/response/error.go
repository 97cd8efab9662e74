package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/logger"
)

type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteError renders err as the JSON error envelope. Anything that is not a
// *domain.Error becomes a bare 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	p := ErrorPayload{Code: "internal_error", Message: "internal error"}
	status := http.StatusInternalServerError

	var de *domain.Error
	if errors.As(err, &de) {
		status = statusFromKind(de.Kind)
		p.Code, p.Message, p.Meta = de.Code, de.Message, de.Meta
	}
	p.RequestID = RequestIDFromContext(r)

	// Causes never reach the client; keep them in the log for 5xx.
	if status >= http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error().
			Err(err).
			Str("code", p.Code).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	if retry := p.Meta["retry_after_seconds"]; retry != "" {
		h.Set("Retry-After", retry)
	}
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorBody{Error: p})
}

var kindStatus = map[domain.ErrKind]int{
	domain.KindValidation:     http.StatusBadRequest,
	domain.KindAuth:           http.StatusUnauthorized,
	domain.KindForbidden:      http.StatusForbidden,
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindConflict:       http.StatusConflict,
	domain.KindRateLimited:    http.StatusTooManyRequests,
	domain.KindUpstream:       http.StatusBadGateway,
	domain.KindInfrastructure: http.StatusServiceUnavailable,
	domain.KindInternal:       http.StatusInternalServerError,
}

func statusFromKind(kind domain.ErrKind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
