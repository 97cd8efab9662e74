package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// VerificationStore keeps pending second-factor sessions in process.
// Update holds a per-identifier lock, so unrelated identifiers never contend.
// Expiry is checked by the service on touch. Expired entries of other
// identifiers are pruned on every Put.
type VerificationStore struct {
	mu    sync.Mutex // guards data and locks
	data  map[string]domain.VerificationSession
	locks map[string]*keyLock
	now   func() time.Time
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		data:  make(map[string]domain.VerificationSession),
		locks: make(map[string]*keyLock),
		now:   time.Now,
	}
}

func (s *VerificationStore) Get(ctx context.Context, key string) (*domain.VerificationSession, error) {
	if key == "" {
		return nil, domain.ErrMissingField("identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *VerificationStore) Put(ctx context.Context, v domain.VerificationSession) error {
	if v.Identifier == "" {
		return domain.ErrMissingField("identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[v.Identifier] = v
	s.pruneLocked(v.Identifier)
	return nil
}

// pruneLocked drops expired sessions nobody is updating. Caller holds s.mu.
func (s *VerificationStore) pruneLocked(keep string) {
	now := s.now()
	for id, v := range s.data {
		if id == keep || !v.Expired(now) {
			continue
		}
		if _, busy := s.locks[id]; busy {
			continue
		}
		delete(s.data, id)
	}
}

func (s *VerificationStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return domain.ErrMissingField("identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *VerificationStore) Update(ctx context.Context, key string, fn auth.UpdateFunc) error {
	if key == "" {
		return domain.ErrMissingField("identifier")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.acquire(key)
	defer s.release(key, l)

	cur, _ := s.Get(ctx, key)
	next, op := fn(cur)

	switch op {
	case auth.OpPut:
		if next == nil {
			return domain.ErrInternal(nil)
		}
		v := *next
		v.Identifier = key
		return s.Put(ctx, v)
	case auth.OpDelete:
		return s.Delete(ctx, key)
	default:
		return nil
	}
}

// Len reports how many sessions are held (expired ones included).
func (s *VerificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *VerificationStore) acquire(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *VerificationStore) release(key string, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}
