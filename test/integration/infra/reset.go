//go:build integration

package infra

import (
	"context"
	"database/sql"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
)

// ResetAll empties users, every Redis key and the code queue.
func ResetAll(ctx context.Context, db *sql.DB, rdb *goredis.Client, conn *amqp.Connection) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE TABLE users`); err != nil {
		return fmt.Errorf("reset postgres: %w", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("reset redis: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("reset rabbit: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueuePurge(CodeQueue, false); err != nil {
		return fmt.Errorf("reset rabbit: %w", err)
	}
	return nil
}
