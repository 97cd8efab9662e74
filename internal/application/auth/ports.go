package auth

import (
	"context"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

/*
UserRepo
--------
Credential lookup port.
Only describes WHAT the auth service needs, not HOW it's stored.
Not found must be reported as domain.ErrUserNotFound.
*/
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

/*
PasswordHasher
--------------
Abstracts bcrypt.
*/
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error // nil if match
}

/*
SessionCodec
------------
Issues and validates signed session tokens.
Used by service + route guard (through the service).
*/
type SessionClaims struct {
	ID         string // jti
	Identifier string
	Role       domain.Role
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type SessionToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

type SessionCodec interface {
	Issue(identifier string, role domain.Role) (SessionToken, error)
	Validate(token string) (SessionClaims, error)
}

/*
VerificationStore
-----------------
Pending second-factor sessions keyed by normalized identifier.
Update must apply fn atomically per key; fn may be called more than once
(optimistic stores retry on conflict) so it must not carry side effects
beyond the returned decision.
*/
type UpdateOp int

const (
	OpKeep   UpdateOp = iota // leave the stored session untouched
	OpPut                    // store the returned session
	OpDelete                 // remove the session
)

type UpdateFunc func(cur *domain.VerificationSession) (*domain.VerificationSession, UpdateOp)

type VerificationStore interface {
	Get(ctx context.Context, key string) (*domain.VerificationSession, error)
	Put(ctx context.Context, s domain.VerificationSession) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

/*
RevocationStore
---------------
Denylist of session token ids, written by logout and consulted by the guard.
Entries only need to live until the token's own expiry.
*/
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

/*
CodeMailer
----------
Delivers a verification code to the identifier's mailbox.
Templates and transport live behind this port (SMTP, RabbitMQ -> email
service, or a log sink in dev). nil error means delivered.
*/
type CodeMailer interface {
	SendCode(ctx context.Context, identifier, code string) error
}
