package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// RevocationStore is the session denylist: "revoked:<jti>" with a TTL equal
// to the token's remaining lifetime.
type RevocationStore struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

func NewRevocationStore(c *Client) *RevocationStore {
	return &RevocationStore{
		rdb:    rdbOf(c),
		prefix: "revoked:",
		now:    time.Now,
	}
}

func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return domain.ErrMissingField("jti")
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errors.New("redis revocation store not configured"))
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		// already expired, nothing can replay it
		return nil
	}
	if err := s.rdb.Set(ctx, s.prefix+tokenID, "1", ttl).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	if s.rdb == nil {
		return false, domain.ErrRedisUnavailable(errors.New("redis revocation store not configured"))
	}
	n, err := s.rdb.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, domain.ErrRedisUnavailable(err)
	}
	return n > 0, nil
}
