package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

type Service struct {
	users   UserRepo
	hasher  PasswordHasher
	codec   SessionCodec
	codes   VerificationStore
	revoked RevocationStore
	mailer  CodeMailer

	codeTTL        time.Duration
	maxAttempts    int
	resendInterval time.Duration
	mailTimeout    time.Duration
	masterSalt     string

	audit func(action string, fields map[string]string)
	now   func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type Config struct {
	CodeTTL            time.Duration
	CodeMaxAttempts    int
	CodeResendInterval time.Duration // 0 disables the resend throttle
	MailTimeout        time.Duration
	MasterCodeSalt     string // empty disables the master fallback code
}

func NewService(
	users UserRepo,
	hasher PasswordHasher,
	codec SessionCodec,
	codes VerificationStore,
	revoked RevocationStore,
	mailer CodeMailer,
	cfg Config,
) *Service {
	auditFn := func(string, map[string]string) {}

	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	maxAttempts := cfg.CodeMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	resend := cfg.CodeResendInterval
	if resend < 0 {
		resend = 0
	}
	mailTimeout := cfg.MailTimeout
	if mailTimeout <= 0 {
		mailTimeout = 10 * time.Second
	}

	return &Service{
		users:   users,
		hasher:  hasher,
		codec:   codec,
		codes:   codes,
		revoked: revoked,
		mailer:  mailer,

		codeTTL:        codeTTL,
		maxAttempts:    maxAttempts,
		resendInterval: resend,
		mailTimeout:    mailTimeout,
		masterSalt:     cfg.MasterCodeSalt,

		audit: auditFn,
		now:   time.Now,
	}
}

func (s *Service) WithAudit(fn func(action string, fields map[string]string)) *Service {
	if fn != nil {
		s.audit = fn
	}
	return s
}

// WithClock overrides the wall clock (tests, replay tooling).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// issueSession signs a session token for an identity.
func (s *Service) issueSession(identifier string, role domain.Role) (SessionToken, error) {
	tok, err := s.codec.Issue(identifier, role)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return SessionToken{}, de
		}
		return SessionToken{}, domain.ErrTokenSignFailed(err)
	}
	return tok, nil
}

// newNumericCode returns a uniformly random zero-padded 6 digit code.
func newNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// dummyPasswordHash is compared against when the identifier is unknown so
// that both login branches pay for one hash comparison.
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("pharmacy-auth-timing-parity")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
