package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

const subject = "Your pharmacy sign-in code"

type Config struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string

	// Outbound throttle shared by all requests. Zero rate disables it.
	RatePerSecond float64
	Burst         int

	Timeout time.Duration
}

// CodeMailer delivers verification codes straight to the user's mailbox.
type CodeMailer struct {
	from    string
	limiter *rate.Limiter
	log     zerolog.Logger

	send func(ctx context.Context, msg *mail.Msg) error
}

func NewCodeMailer(cfg Config, log zerolog.Logger) (*CodeMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp: host and from are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	// Only add authentication if username and password are provided
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	m := &CodeMailer{
		from:    cfg.From,
		limiter: newLimiter(cfg.RatePerSecond, cfg.Burst),
		log: log.With().
			Str("component", "smtp_code_mailer").
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Logger(),
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
	return m, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (m *CodeMailer) SendCode(ctx context.Context, identifier, code string) error {
	msg, err := m.buildMessage(identifier, code)
	if err != nil {
		return domain.ErrDeliveryFailed(err)
	}

	// Waiting past the caller's deadline fails fast instead of sleeping.
	if err := m.limiter.Wait(ctx); err != nil {
		return domain.ErrDeliveryFailed(fmt.Errorf("smtp throttle: %w", err))
	}

	if err := m.send(ctx, msg); err != nil {
		m.log.Error().Err(err).Msg("send verification code failed")
		return domain.ErrDeliveryFailed(err)
	}

	m.log.Info().Msg("verification code sent")
	return nil
}

func (m *CodeMailer) buildMessage(to, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body(code))
	return msg, nil
}

func body(code string) string {
	return fmt.Sprintf(
		"Your verification code is %s\n\n"+
			"It expires in a few minutes and can be used once.\n"+
			"If you did not try to sign in, you can ignore this email.\n",
		code,
	)
}
