package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// JWTCodec issues and validates HS256 session tokens.
type JWTCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTCodec(secret, issuer string, ttl time.Duration) *JWTCodec {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JWTCodec{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock used for iat/exp and for expiry checks.
func (c *JWTCodec) WithClock(now func() time.Time) *JWTCodec {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *JWTCodec) TTL() time.Duration { return c.ttl }

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *JWTCodec) Issue(identifier string, role domain.Role) (auth.SessionToken, error) {
	if !domain.IsValidRole(string(role)) {
		return auth.SessionToken{}, domain.ErrInvalidRole(string(role))
	}

	// jwt NumericDate is second precision; truncate so ExpiresAt matches the token.
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)
	jti := uuid.NewString()

	claims := sessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.issuer,
			Subject:   identifier,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return auth.SessionToken{}, domain.ErrTokenSignFailed(err)
	}
	return auth.SessionToken{Value: signed, ID: jti, ExpiresAt: exp}, nil
}

func (c *JWTCodec) Validate(token string) (auth.SessionClaims, error) {
	if token == "" {
		return auth.SessionClaims{}, domain.ErrTokenRejected(errors.New("empty token"))
	}

	opts := []jwt.ParserOption{
		// prevent alg confusion
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return auth.SessionClaims{}, domain.ErrTokenRejected(err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return auth.SessionClaims{}, domain.ErrTokenRejected(errors.New("unexpected claims"))
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return auth.SessionClaims{}, domain.ErrTokenRejected(errors.New("unknown role"))
	}
	if claims.Subject == "" {
		return auth.SessionClaims{}, domain.ErrTokenRejected(errors.New("missing subject"))
	}

	out := auth.SessionClaims{
		ID:         claims.ID,
		Identifier: claims.Subject,
		Role:       role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
