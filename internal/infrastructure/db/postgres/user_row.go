package postgres

import (
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

type userRow struct {
	ID                   string
	Email                string
	PasswordHash         string
	Role                 string
	EmailVerified        bool
	SecondFactorRequired bool
	CreatedAt            time.Time
}

const userColumns = `id, email, password_hash, role, email_verified, second_factor_required, created_at`

func (ur userRow) toDomain() (domain.User, error) {
	role, ok := domain.ParseRole(ur.Role)
	if !ok {
		return domain.User{}, domain.ErrInvalidRole(ur.Role)
	}
	return domain.User{
		ID:                   ur.ID,
		Email:                ur.Email,
		PasswordHash:         ur.PasswordHash,
		Role:                 role,
		EmailVerified:        ur.EmailVerified,
		SecondFactorRequired: ur.SecondFactorRequired,
	}, nil
}
