package security

import (
	"errors"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher checks account passwords. Hash is only used for dev seeding
// and the login timing-parity hash; accounts are provisioned elsewhere.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost into bcrypt's valid range; 0 means default.
func NewBcryptHasher(cost int) *BcryptHasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", domain.ErrHashFailed(err)
	}
	return string(b), nil
}

// Compare returns nil on match, bcrypt.ErrMismatchedHashAndPassword on a
// wrong password, and hash_failed when the stored hash is unusable.
func (h *BcryptHasher) Compare(hash string, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return err
	}
	return domain.ErrHashFailed(err)
}
