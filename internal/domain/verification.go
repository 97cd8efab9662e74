package domain

import "time"

// VerificationSession is the pending second-factor state of one identifier.
type VerificationSession struct {
	Identifier  string    `json:"identifier"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
}

func (s VerificationSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s VerificationSession) Exhausted() bool {
	return s.Attempts >= s.MaxAttempts
}
