package auth

import (
	"context"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

type LoginOutcome int

const (
	OutcomeAuthenticated LoginOutcome = iota + 1
	OutcomeSecondFactorRequired
)

type LoginResult struct {
	Outcome    LoginOutcome
	Identifier string
	Role       domain.Role  // set on OutcomeAuthenticated
	Session    SessionToken // set on OutcomeAuthenticated
}

// Login checks a password and decides whether a second factor is needed.
// IMPORTANT: must not leak whether the email exists (avoid user enumeration).
// It never sends a verification code; callers trigger IssueCode explicitly.
func (s *Service) Login(ctx context.Context, identifier, secret string) (LoginResult, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	audit := s.auditFn("auth.login", identifier)

	if identifier == "" || secret == "" {
		err := domain.ErrInvalidCredentials()
		audit("error", err, nil)
		return LoginResult{}, err
	}

	u, err := s.users.GetByEmail(ctx, identifier)
	if err != nil {
		if !domain.Is(err, "user_not_found") {
			audit("error", err, nil)
			return LoginResult{}, err
		}
		// Hide not-found behind invalid credentials, after paying for a compare.
		_ = s.hasher.Compare(s.dummyPasswordHash(), secret)
		err = domain.ErrInvalidCredentials()
		audit("error", err, map[string]string{"reason": "unknown_identifier"})
		return LoginResult{}, err
	}

	if err := s.hasher.Compare(u.PasswordHash, secret); err != nil {
		err = domain.ErrInvalidCredentials()
		audit("error", err, map[string]string{"reason": "password_mismatch"})
		return LoginResult{}, err
	}

	// Eligibility is only revealed to someone who knows the password.
	if !u.EmailVerified {
		err := domain.ErrAccountUnverified()
		audit("error", err, nil)
		return LoginResult{}, err
	}

	if u.SecondFactorRequired {
		audit("second_factor_required", nil, map[string]string{"role": string(u.Role)})
		return LoginResult{Outcome: OutcomeSecondFactorRequired, Identifier: identifier}, nil
	}

	tok, err := s.issueSession(identifier, u.Role)
	if err != nil {
		audit("error", err, nil)
		return LoginResult{}, err
	}

	audit("success", nil, map[string]string{"role": string(u.Role), "jti": tok.ID})
	return LoginResult{
		Outcome:    OutcomeAuthenticated,
		Identifier: identifier,
		Role:       u.Role,
		Session:    tok,
	}, nil
}
