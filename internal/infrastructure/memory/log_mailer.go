package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// loggedCodeTTL bounds how long LastCode remembers a code; no code lives
// longer than CODE_TTL anyway.
const loggedCodeTTL = time.Hour

// LogMailer writes verification codes to the log instead of sending them.
// Dev only; config refuses MAIL_TRANSPORT=log elsewhere.
type LogMailer struct {
	log zerolog.Logger
	now func() time.Time

	mu   sync.Mutex
	last map[string]loggedCode
}

type loggedCode struct {
	code string
	at   time.Time
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{
		log:  log.With().Str("component", "log_mailer").Logger(),
		now:  time.Now,
		last: make(map[string]loggedCode),
	}
}

func (m *LogMailer) SendCode(ctx context.Context, identifier, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	m.mu.Lock()
	for id, c := range m.last {
		if now.Sub(c.at) > loggedCodeTTL {
			delete(m.last, id)
		}
	}
	m.last[identifier] = loggedCode{code: code, at: now}
	m.mu.Unlock()

	m.log.Warn().
		Str("identifier", identifier).
		Str("code", code).
		Msg("DEV verification code (not delivered)")
	return nil
}

// LastCode returns the most recent code logged for identifier.
func (m *LogMailer) LastCode(identifier string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.last[identifier]
	return c.code, ok
}
