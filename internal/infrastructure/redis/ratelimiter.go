package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// FixedWindowLimiter counts hits per "rl:<scope>:<subject>" key in Redis.
// The first hit of a window sets the expiry, so the window starts on first use.
type FixedWindowLimiter struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

func NewFixedWindowLimiter(c *Client) *FixedWindowLimiter {
	return &FixedWindowLimiter{rdb: rdbOf(c), prefix: "rl:", now: time.Now}
}

// Enabled reports whether a Redis backend is wired.
func (l *FixedWindowLimiter) Enabled() bool { return l != nil && l.rdb != nil }

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // 0 if allowed
	ResetAt    time.Time     // window end (best-effort)
	Count      int
}

// atomic INCR + set expire on first hit; returns {count, ttl_ms}
var fixedWindowScript = goredis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {c, ttl}
`)

// Allow records one hit for subject within scope.
// limit <= 0 disables limiting; a missing backend allows (fail-open).
func (l *FixedWindowLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window < time.Second {
		window = time.Minute
	}
	if !l.Enabled() {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	key := l.prefix + scope + ":" + subject
	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, domain.ErrRedisUnavailable(fmt.Errorf("ratelimit eval: %w", err))
	}
	if len(res) != 2 {
		return Decision{}, domain.ErrRedisUnavailable(fmt.Errorf("ratelimit eval: unexpected result %v", res))
	}

	count, ok1 := res[0].(int64)
	ttlms, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return Decision{}, domain.ErrRedisUnavailable(fmt.Errorf("ratelimit eval: unexpected result %v", res))
	}
	ttl := time.Duration(ttlms) * time.Millisecond

	d := Decision{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		Count:     int(count),
		ResetAt:   l.now().Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = window
		if ttl > 0 {
			d.RetryAfter = ttl
		}
	}
	return d, nil
}
