package memory

import (
	"context"
	"sync"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// UserRepo is the dev credential store, filled by seeding at startup.
type UserRepo struct {
	mu      sync.RWMutex
	byEmail map[string]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{byEmail: make(map[string]domain.User)}
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = domain.NormalizeIdentifier(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeIdentifier(u.Email)
	if u.Email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	if u.ID == "" {
		return domain.User{}, domain.ErrMissingField("id")
	}
	if !domain.IsValidRole(string(u.Role)) {
		return domain.User{}, domain.ErrInvalidRole(string(u.Role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return domain.User{}, domain.ErrUserExists()
	}
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *UserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}
