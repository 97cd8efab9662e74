package audit

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for auth business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// sensitive actions are always logged at warn so they survive level filtering
var sensitive = map[string]bool{
	"auth.master_code.used": true,
}

// Record writes one audit event. It matches the recorder signature the auth
// service accepts in WithAudit. Identifier fields are email-masked.
func (l *Logger) Record(action string, fields map[string]string) {
	ev := l.log.Info()
	if sensitive[action] || fields["result"] == "error" || fields["result"] == "delivery_failed" {
		ev = l.log.Warn()
	}

	ev = ev.Str("action", action)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		if k == "identifier" || k == "email" {
			v = maskEmail(v)
		}
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}

// maskEmail partially masks email for privacy in logs
func maskEmail(email string) string {
	if len(email) < 5 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email[:2] + "***"
	}
	// Show first 2 chars and domain
	if at < 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
