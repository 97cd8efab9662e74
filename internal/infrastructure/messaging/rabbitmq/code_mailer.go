package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

const (
	DefaultExchange = "pharmacy.events"

	// RoutingKeyCodeRequested is consumed by the email service, which renders
	// and sends the verification mail.
	RoutingKeyCodeRequested = "auth.verification_code.requested"

	// Upper bound for broker confirm when the caller's ctx has no deadline.
	defaultPublishTimeout = 5 * time.Second
)

// CodeRequestedEvent is the message body of RoutingKeyCodeRequested.
type CodeRequestedEvent struct {
	Identifier  string    `json:"identifier"`
	Code        string    `json:"code"`
	RequestedAt time.Time `json:"requested_at"`
}

// CodeMailer hands verification codes to the email service over a topic
// exchange, with publisher confirms and mandatory routing: a nil error means
// the broker accepted and routed the message.
type CodeMailer struct {
	url      string
	exchange string
	log      zerolog.Logger

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewCodeMailer(url, exchange string, log zerolog.Logger) (*CodeMailer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	m := &CodeMailer{
		url:      url,
		exchange: exchange,
		log:      log.With().Str("component", "rabbitmq_code_mailer").Logger(),
	}
	if err := m.connect(); err != nil {
		return nil, domain.ErrRabbitUnavailable(err)
	}
	return m, nil
}

func (m *CodeMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetConn()
	return nil
}

// ---- auth.CodeMailer ----

func (m *CodeMailer) SendCode(ctx context.Context, identifier, code string) error {
	return m.publishJSON(ctx, RoutingKeyCodeRequested, CodeRequestedEvent{
		Identifier:  identifier,
		Code:        code,
		RequestedAt: time.Now().UTC(),
	})
}

// Ping reports whether the broker connection is up (readiness).
func (m *CodeMailer) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return domain.ErrRabbitUnavailable(err)
	}
	return nil
}

// ---- internal ----

func (m *CodeMailer) connect() error {
	conn, err := amqp.Dial(m.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	// Declare topic exchange (idempotent).
	if err := ch.ExchangeDeclare(
		m.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	// Enable confirm mode.
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	m.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	m.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	m.conn = conn
	m.ch = ch
	return nil
}

func (m *CodeMailer) ensureConnected() error {
	if m.conn != nil && !m.conn.IsClosed() && m.ch != nil && !m.ch.IsClosed() {
		return nil
	}
	m.resetConn()
	return m.connect()
}

func (m *CodeMailer) publishJSON(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ErrInternal(fmt.Errorf("marshal payload: %w", err))
	}

	// Ensure there is a deadline to avoid blocking forever.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return domain.ErrRabbitUnavailable(err)
	}

	// Drain any stale confirm / return messages to avoid mixing results.
drain:
	for {
		select {
		case <-m.confirmCh:
		case <-m.returnCh:
		default:
			break drain
		}
	}

	if err := m.ch.PublishWithContext(
		ctx,
		m.exchange,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		// Publish call itself failed (channel/connection level error).
		m.resetConn()
		return domain.ErrRabbitUnavailable(fmt.Errorf("publish: %w", err))
	}

	select {
	case ret := <-m.returnCh:
		// No queue is bound for this routing key.
		return domain.ErrRabbitUnavailable(fmt.Errorf(
			"unroutable: key=%s code=%d text=%s", routingKey, ret.ReplyCode, ret.ReplyText,
		))

	case conf := <-m.confirmCh:
		// The broker sends basic.return before basic.ack, so a return for this
		// message is already buffered by the time the ack is read.
		select {
		case ret := <-m.returnCh:
			return domain.ErrRabbitUnavailable(fmt.Errorf(
				"unroutable: key=%s code=%d text=%s", routingKey, ret.ReplyCode, ret.ReplyText,
			))
		default:
		}
		if !conf.Ack {
			return domain.ErrRabbitUnavailable(fmt.Errorf("nack: key=%s deliveryTag=%d", routingKey, conf.DeliveryTag))
		}
		m.log.Debug().Str("routing_key", routingKey).Uint64("delivery_tag", conf.DeliveryTag).Msg("published")
		return nil

	case <-ctx.Done():
		m.log.Warn().Str("routing_key", routingKey).Msg("publish confirm timed out")
		return domain.ErrRabbitUnavailable(ctx.Err())
	}
}

func (m *CodeMailer) resetConn() {
	if m.ch != nil {
		_ = m.ch.Close()
		m.ch = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}
