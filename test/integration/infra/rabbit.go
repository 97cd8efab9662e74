//go:build integration

package infra

import (
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/pharmacy-auth/internal/infrastructure/messaging/rabbitmq"
)

// CodeQueue stands in for the email service's queue.
const CodeQueue = "it.pharmacy.verification_codes"

// EnsureCodeQueue declares the exchange and a durable queue bound to the
// code-requested routing key. Tests only consume from it.
func EnsureCodeQueue(conn *amqp.Connection, exchange string) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(CodeQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(CodeQueue, rabbitmq.RoutingKeyCodeRequested, exchange, false, nil)
}

// NextCode reads code events until one for identifier arrives.
func NextCode(conn *amqp.Connection, identifier string, wait time.Duration) (string, error) {
	ch, err := conn.Channel()
	if err != nil {
		return "", err
	}
	defer ch.Close()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		msg, ok, err := ch.Get(CodeQueue, true)
		if err != nil {
			return "", err
		}
		if !ok {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		var ev rabbitmq.CodeRequestedEvent
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return "", fmt.Errorf("decode code event: %w", err)
		}
		if ev.Identifier == identifier {
			return ev.Code, nil
		}
	}
	return "", fmt.Errorf("no code event for %s within %s", identifier, wait)
}
