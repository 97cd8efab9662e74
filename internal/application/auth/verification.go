package auth

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

type IssueResult struct {
	Delivered bool
}

type VerifyResult struct {
	Identifier    string
	Role          domain.Role
	Session       SessionToken
	ViaMasterCode bool
}

// IssueCode starts (or restarts) second-factor verification for identifier.
// Any pending code is replaced. Delivery failure is reported through
// Delivered=false; the stored code stays valid and the master code remains
// usable.
// IMPORTANT: non-enumerating - unknown identifiers, and accounts that cannot
// use a second factor, report Delivered=true without storing or sending
// anything.
func (s *Service) IssueCode(ctx context.Context, identifier string) (IssueResult, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	audit := s.auditFn("auth.code.issue", identifier)

	if identifier == "" {
		err := domain.ErrMissingField("identifier")
		audit("error", err, nil)
		return IssueResult{}, err
	}

	u, err := s.users.GetByEmail(ctx, identifier)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			audit("skipped", nil, map[string]string{"reason": "unknown_identifier"})
			return IssueResult{Delivered: true}, nil
		}
		audit("error", err, nil)
		return IssueResult{}, err
	}
	if !secondFactorEligible(u) {
		audit("skipped", nil, map[string]string{"reason": "not_eligible"})
		return IssueResult{Delivered: true}, nil
	}

	code, err := newNumericCode()
	if err != nil {
		err = domain.ErrRandomFailed(err)
		audit("error", err, nil)
		return IssueResult{}, err
	}

	now := s.now()
	fresh := domain.VerificationSession{
		Identifier:  identifier,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeTTL),
		MaxAttempts: s.maxAttempts,
	}

	var throttled error
	err = s.codes.Update(ctx, identifier, func(cur *domain.VerificationSession) (*domain.VerificationSession, UpdateOp) {
		throttled = nil
		if cur != nil && s.resendInterval > 0 && !cur.Expired(now) {
			if wait := cur.CreatedAt.Add(s.resendInterval).Sub(now); wait > 0 {
				throttled = domain.ErrResendTooSoon(wait)
				return nil, OpKeep
			}
		}
		next := fresh
		return &next, OpPut
	})
	if err != nil {
		audit("error", err, nil)
		return IssueResult{}, err
	}
	if throttled != nil {
		audit("throttled", throttled, nil)
		return IssueResult{}, throttled
	}

	// Delivery is best effort and must not outlive the request by much.
	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.mailer.SendCode(sendCtx, identifier, code); err != nil {
		derr := domain.ErrDeliveryFailed(err)
		audit("delivery_failed", derr, map[string]string{"cause": err.Error()})
		return IssueResult{Delivered: false}, nil
	}

	audit("success", nil, map[string]string{"expires_at": fresh.ExpiresAt.UTC().Format(time.RFC3339)})
	return IssueResult{Delivered: true}, nil
}

// VerifyCode checks a submitted code against the pending session, or
// against today's master code. Every attempt that reaches the comparison is
// counted before comparing.
func (s *Service) VerifyCode(ctx context.Context, identifier, submitted string) (VerifyResult, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	submitted = strings.TrimSpace(submitted)
	audit := s.auditFn("auth.code.verify", identifier)

	if identifier == "" {
		err := domain.ErrMissingField("identifier")
		audit("error", err, nil)
		return VerifyResult{}, err
	}

	now := s.now()
	var (
		outcome   error
		viaMaster bool
		attempts  int
	)
	err := s.codes.Update(ctx, identifier, func(cur *domain.VerificationSession) (*domain.VerificationSession, UpdateOp) {
		outcome, viaMaster, attempts = nil, false, 0

		if cur == nil {
			outcome = domain.ErrNoPendingVerification()
			return nil, OpKeep
		}
		if cur.Expired(now) {
			outcome = domain.ErrCodeExpired()
			return nil, OpDelete
		}
		if cur.Exhausted() {
			outcome = domain.ErrTooManyAttempts()
			return nil, OpDelete
		}

		next := *cur
		next.Attempts++
		attempts = next.Attempts

		switch {
		case submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(cur.Code)) == 1:
			return nil, OpDelete
		case s.matchesMasterCode(submitted):
			viaMaster = true
			return nil, OpDelete
		default:
			outcome = domain.ErrCodeInvalid()
			return &next, OpPut
		}
	})
	if err != nil {
		audit("error", err, nil)
		return VerifyResult{}, err
	}
	if outcome != nil {
		extra := map[string]string{}
		if attempts > 0 {
			extra["attempts"] = strconv.Itoa(attempts)
		}
		audit("error", outcome, extra)
		return VerifyResult{}, outcome
	}

	if viaMaster {
		s.audit("auth.master_code.used", map[string]string{
			"identifier": identifier,
			"result":     "success",
			"day":        now.UTC().Format(time.DateOnly),
		})
	}

	// Role is read fresh; it may have changed since the password step.
	u, err := s.users.GetByEmail(ctx, identifier)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			err = domain.ErrInvalidCredentials()
		}
		audit("error", err, nil)
		return VerifyResult{}, err
	}
	// The account may have changed since the code was issued.
	switch {
	case !u.EmailVerified:
		err = domain.ErrAccountUnverified()
	case !u.SecondFactorRequired:
		err = domain.ErrInvalidCredentials()
	}
	if err != nil {
		audit("error", err, map[string]string{"reason": "not_eligible"})
		return VerifyResult{}, err
	}

	tok, err := s.issueSession(identifier, u.Role)
	if err != nil {
		audit("error", err, nil)
		return VerifyResult{}, err
	}

	audit("success", nil, map[string]string{
		"role":       string(u.Role),
		"jti":        tok.ID,
		"via_master": strconv.FormatBool(viaMaster),
	})
	return VerifyResult{
		Identifier:    identifier,
		Role:          u.Role,
		Session:       tok,
		ViaMasterCode: viaMaster,
	}, nil
}

// secondFactorEligible reports whether u may finish sign-in with a code.
// Accounts that log in directly, or are not yet verified, never can.
func secondFactorEligible(u domain.User) bool {
	return u.EmailVerified && u.SecondFactorRequired
}
