package http_handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/security"
	"github.com/baechuer/pharmacy-auth/internal/logger"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/dto"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/middleware"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/response"
)

type AuthHandler struct {
	svc    *auth.Service
	cookie security.CookieConfig
	now    func() time.Time
}

func NewAuthHandler(svc *auth.Service, cookie security.CookieConfig) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		cookie: cookie,
		now:    time.Now,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		switch {
		case domain.Is(err, "invalid_credentials"):
			middleware.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
			writeFailure(w, http.StatusUnauthorized, dto.StatusInvalid, err)
		case domain.Is(err, "account_unverified"):
			middleware.LoginAttemptsTotal.WithLabelValues("unverified").Inc()
			writeFailure(w, http.StatusForbidden, dto.StatusUnverified, err)
		default:
			middleware.LoginAttemptsTotal.WithLabelValues("error").Inc()
			response.WriteError(w, r, err)
		}
		return
	}

	if res.Outcome == auth.OutcomeSecondFactorRequired {
		middleware.LoginAttemptsTotal.WithLabelValues("verification_required").Inc()
		response.OK(w, dto.LoginVerificationRequiredResponse{
			Status:     dto.StatusVerificationRequired,
			Identifier: res.Identifier,
		})
		return
	}

	middleware.LoginAttemptsTotal.WithLabelValues("authenticated").Inc()
	h.setSession(w, res.Session)

	logger.WithCtx(r.Context()).Info().
		Str("role", string(res.Role)).
		Msg("user_logged_in")

	response.OK(w, dto.LoginAuthenticatedResponse{
		Status:   dto.StatusAuthenticated,
		Role:     string(res.Role),
		Redirect: domain.DashboardFor(res.Role),
	})
}

// SendCode handles POST /api/auth/send-code
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req dto.SendCodeRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.IssueCode(r.Context(), req.Identifier)
	if err != nil {
		if domain.Is(err, "resend_too_soon") {
			middleware.CodesIssuedTotal.WithLabelValues("throttled").Inc()
		} else {
			middleware.CodesIssuedTotal.WithLabelValues("error").Inc()
		}
		response.WriteError(w, r, err)
		return
	}

	if res.Delivered {
		middleware.CodesIssuedTotal.WithLabelValues("delivered").Inc()
	} else {
		middleware.CodesIssuedTotal.WithLabelValues("undelivered").Inc()
	}

	response.OK(w, dto.SendCodeResponse{Delivered: res.Delivered})
}

// VerifyCode handles POST /api/auth/verify-code
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyCodeRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.VerifyCode(r.Context(), req.Identifier, req.Code)
	if err != nil {
		status, label, ok := verifyFailure(err)
		if !ok {
			middleware.CodesVerifiedTotal.WithLabelValues("error").Inc()
			response.WriteError(w, r, err)
			return
		}
		middleware.CodesVerifiedTotal.WithLabelValues(label).Inc()
		writeFailure(w, status, label, err)
		return
	}

	middleware.CodesVerifiedTotal.WithLabelValues(dto.StatusOK).Inc()
	if res.ViaMasterCode {
		middleware.MasterCodeUsesTotal.Inc()
	}
	h.setSession(w, res.Session)

	response.OK(w, dto.VerifyCodeResponse{
		Status:   dto.StatusOK,
		Role:     string(res.Role),
		Redirect: domain.DashboardFor(res.Role),
	})
}

// Logout handles POST /api/auth/logout
// Always succeeds: a revocation failure is logged, and the clearing headers
// are sent regardless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := security.ReadSessionCookie(r, h.cookie)

	result := "ok"
	if err := h.svc.Logout(r.Context(), token); err != nil {
		result = "revoke_failed"
		logger.WithCtx(r.Context()).Warn().Err(err).Msg("logout: revoke failed, clearing cookies anyway")
	}
	middleware.LogoutsTotal.WithLabelValues(result).Inc()

	security.ClearSessionCookies(w, r, h.cookie)
	security.NoCacheHeaders(w)

	response.OK(w, dto.StatusResponse{Status: dto.StatusOK})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, tok auth.SessionToken) {
	ttl := tok.ExpiresAt.Sub(h.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	security.SetSessionCookie(w, h.cookie, tok.Value, ttl)
}

// verifyFailure maps expected verification outcomes to their flat body.
func verifyFailure(err error) (int, string, bool) {
	switch {
	case domain.Is(err, "code_invalid"), domain.Is(err, "invalid_credentials"):
		return http.StatusUnauthorized, dto.StatusInvalid, true
	case domain.Is(err, "code_expired"):
		return http.StatusUnauthorized, dto.StatusExpired, true
	case domain.Is(err, "too_many_attempts"):
		return http.StatusTooManyRequests, dto.StatusTooManyAttempts, true
	case domain.Is(err, "no_pending_verification"):
		return http.StatusNotFound, dto.StatusNoPending, true
	default:
		return 0, "", false
	}
}

func writeFailure(w http.ResponseWriter, status int, label string, err error) {
	msg := "request failed"
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	response.WriteJSON(w, status, dto.FailureResponse{Status: label, Message: msg})
}
