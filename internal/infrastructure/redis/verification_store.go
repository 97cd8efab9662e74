package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// Keys outlive the code itself so an expired code reports code_expired
// instead of no_pending_verification.
const verificationRetention = 10 * time.Minute

const maxTxRetries = 10

// VerificationStore keeps pending second-factor sessions as JSON under
// "verify:<identifier>". Update uses WATCH/MULTI/EXEC and retries on conflict.
type VerificationStore struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

func NewVerificationStore(c *Client) *VerificationStore {
	return &VerificationStore{
		rdb:    rdbOf(c),
		prefix: "verify:",
		now:    time.Now,
	}
}

// getter is satisfied by both *goredis.Client and *goredis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

var errNotConfigured = errors.New("redis verification store not configured")

func (s *VerificationStore) Get(ctx context.Context, key string) (*domain.VerificationSession, error) {
	if key == "" {
		return nil, domain.ErrMissingField("identifier")
	}
	if s.rdb == nil {
		return nil, domain.ErrRedisUnavailable(errNotConfigured)
	}
	return s.get(ctx, s.rdb, s.key(key))
}

func (s *VerificationStore) Put(ctx context.Context, v domain.VerificationSession) error {
	if v.Identifier == "" {
		return domain.ErrMissingField("identifier")
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errNotConfigured)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return domain.ErrInternal(fmt.Errorf("verification encode: %w", err))
	}
	if err := s.rdb.Set(ctx, s.key(v.Identifier), b, s.ttlFor(v)).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (s *VerificationStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return domain.ErrMissingField("identifier")
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errNotConfigured)
	}
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

// Update applies fn to the current session inside an optimistic transaction.
// fn is re-run whenever another writer touched the key in between.
func (s *VerificationStore) Update(ctx context.Context, key string, fn auth.UpdateFunc) error {
	if key == "" {
		return domain.ErrMissingField("identifier")
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errNotConfigured)
	}

	k := s.key(key)
	txf := func(tx *goredis.Tx) error {
		cur, err := s.get(ctx, tx, k)
		if err != nil {
			return err
		}

		next, op := fn(cur)

		switch op {
		case auth.OpKeep:
			return nil
		case auth.OpDelete:
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Del(ctx, k)
				return nil
			})
			return err
		case auth.OpPut:
			if next == nil {
				return domain.ErrInternal(errors.New("verification update: put without session"))
			}
			b, err := json.Marshal(next)
			if err != nil {
				return domain.ErrInternal(fmt.Errorf("verification encode: %w", err))
			}
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, k, b, s.ttlFor(*next))
				return nil
			})
			return err
		default:
			return domain.ErrInternal(fmt.Errorf("verification update: unknown op %d", op))
		}
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		var de *domain.Error
		if errors.As(err, &de) {
			return de
		}
		return domain.ErrRedisUnavailable(err)
	}
	return domain.ErrRedisUnavailable(errors.New("verification update: too much contention"))
}

func (s *VerificationStore) get(ctx context.Context, c getter, k string) (*domain.VerificationSession, error) {
	b, err := c.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, domain.ErrRedisUnavailable(err)
	}
	var v domain.VerificationSession
	if err := json.Unmarshal(b, &v); err != nil {
		// A corrupt entry is treated as absent; the next IssueCode overwrites it.
		return nil, nil
	}
	return &v, nil
}

func (s *VerificationStore) ttlFor(v domain.VerificationSession) time.Duration {
	ttl := v.ExpiresAt.Sub(s.now()) + verificationRetention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *VerificationStore) key(identifier string) string {
	return s.prefix + identifier
}
