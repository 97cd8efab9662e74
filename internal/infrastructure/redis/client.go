package redis

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const clientName = "pharmacy-auth"

// Client wraps go-redis for the verification, revocation and rate limit
// stores. It satisfies bootstrap.RedisClient.
type Client struct {
	rdb *goredis.Client
}

// New accepts either host:port or a redis:// / rediss:// URL in addr.
// Password and db from a URL win over the explicit arguments when set.
func New(addr, password string, db int) *Client {
	return &Client{rdb: goredis.NewClient(options(addr, password, db))}
}

func options(addr, password string, db int) *goredis.Options {
	opt := &goredis.Options{Addr: addr, Password: password, DB: db}

	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if parsed, err := goredis.ParseURL(addr); err == nil {
			opt = parsed
			if opt.Password == "" {
				opt.Password = password
			}
			if opt.DB == 0 {
				opt.DB = db
			}
		}
	}

	opt.ClientName = clientName
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second
	return opt
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func rdbOf(c *Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}
