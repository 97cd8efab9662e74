package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// RevocationStore is the in-process session denylist.
// Entries are pruned lazily once the revoked token would have expired anyway.
type RevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{revoked: make(map[string]time.Time), now: time.Now}
}

func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return domain.ErrMissingField("jti")
	}
	now := s.now()
	if !until.After(now) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[tokenID] = until
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.revoked[tokenID]
	return ok && exp.After(s.now()), nil
}
