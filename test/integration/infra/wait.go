//go:build integration

package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// poll retries check until it succeeds or ctx ends.
func poll(ctx context.Context, what string, every time.Duration, check func() error) error {
	var last error
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait %s: %w (last=%v)", what, ctx.Err(), last)
		case <-t.C:
			if last = check(); last == nil {
				return nil
			}
		}
	}
}

func WaitPostgres(ctx context.Context, dsn string) error {
	return poll(ctx, "postgres", 400*time.Millisecond, func() error {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.PingContext(ctx)
	})
}

func WaitRedis(ctx context.Context, addr string) error {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	return poll(ctx, "redis", 300*time.Millisecond, func() error {
		return rdb.Ping(ctx).Err()
	})
}

func WaitRabbit(ctx context.Context, amqpURL string) error {
	return poll(ctx, "rabbit", 400*time.Millisecond, func() error {
		conn, err := amqp.Dial(amqpURL)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}
