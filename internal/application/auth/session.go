package auth

import (
	"context"
	"strings"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// ValidateSession accepts a raw session token when its signature and expiry
// hold and its id has not been revoked by a logout. All failures collapse to
// token_invalid; denylist lookup failures are infrastructure errors.
func (s *Service) ValidateSession(ctx context.Context, token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, domain.ErrTokenMissing()
	}

	claims, err := s.codec.Validate(token)
	if err != nil {
		return SessionClaims{}, err
	}

	if s.revoked != nil && claims.ID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return SessionClaims{}, err
		}
		if revoked {
			return SessionClaims{}, domain.ErrTokenRejected(errRevoked)
		}
	}

	return claims, nil
}

// Logout revokes the token id until the token's own expiry.
// If the token is missing or already invalid, it becomes a no-op: the
// client-side cookie clearing is what ends the session in that case.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	claims, err := s.codec.Validate(token)
	if err != nil {
		s.audit("auth.logout", map[string]string{"result": "noop", "error_code": domainCode(err)})
		return nil
	}

	audit := s.auditFn("auth.logout", claims.Identifier)
	if s.revoked == nil || claims.ID == "" {
		audit("success", nil, map[string]string{"revoked": "false"})
		return nil
	}

	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		audit("error", err, nil)
		return err
	}

	audit("success", nil, map[string]string{"revoked": "true", "jti": claims.ID})
	return nil
}

type revokedError struct{}

func (revokedError) Error() string { return "token revoked" }

var errRevoked error = revokedError{}
