package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrKind is used to map domain errors to HTTP status codes consistently.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"     // 400
	KindAuth           ErrKind = "auth"           // 401
	KindForbidden      ErrKind = "forbidden"      // 403
	KindNotFound       ErrKind = "not_found"      // 404
	KindConflict       ErrKind = "conflict"       // 409
	KindRateLimited    ErrKind = "rate_limited"   // 429
	KindUpstream       ErrKind = "upstream"       // 502
	KindInfrastructure ErrKind = "infrastructure" // 503/500
	KindInternal       ErrKind = "internal"       // 500
)

// Error is a structured domain error.
// - Kind: high-level category for HTTP mapping
// - Code: stable machine code (do not change casually)
// - Message: safe summary for clients (avoid leaking sensitive details)
// - Meta: optional details (field, reason, etc.)
// - Cause: wrapped internal error for logging/diagnostics
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func WithMeta(err *Error, meta map[string]string) *Error {
	err.Meta = meta
	return err
}

func Is(err error, code string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ----------------------
// Validation errors (400)
// ----------------------

func ErrInvalidJSON(cause error) *Error {
	return Wrap(KindValidation, "invalid_json", "invalid JSON body", cause)
}

func ErrMissingField(field string) *Error {
	return WithMeta(New(KindValidation, "missing_field", "missing required field"), map[string]string{
		"field": field,
	})
}

func ErrInvalidField(field, reason string) *Error {
	return WithMeta(New(KindValidation, "invalid_field", "invalid field"), map[string]string{
		"field":  field,
		"reason": reason,
	})
}

// ----------------------
// Auth errors (401)
// ----------------------

// IMPORTANT: use this for every login failure to avoid user enumeration.
func ErrInvalidCredentials() *Error {
	return New(KindAuth, "invalid_credentials", "invalid email or password")
}

// Session token codes; the guard treats both as "no session".
const (
	CodeTokenMissing = "token_missing"
	CodeTokenInvalid = "token_invalid"
)

func ErrTokenMissing() *Error {
	return New(KindAuth, CodeTokenMissing, "no token provided")
}

// ErrTokenRejected is the single outward answer for a bad token; the
// parser's reason (expired, bad signature, ...) stays in the cause for logs.
func ErrTokenRejected(cause error) *Error {
	return Wrap(KindAuth, CodeTokenInvalid, "invalid token", cause)
}

func ErrCodeInvalid() *Error {
	return New(KindAuth, "code_invalid", "verification code is incorrect")
}

func ErrCodeExpired() *Error {
	return New(KindAuth, "code_expired", "verification code has expired, request a new code")
}

// ----------------------
// Forbidden (403)
// ----------------------

func ErrCSRFRejected(reason string) *Error {
	return WithMeta(New(KindForbidden, "csrf_rejected", "cross-origin request not allowed"), map[string]string{
		"reason": reason,
	})
}

func ErrAccountUnverified() *Error {
	return New(KindForbidden, "account_unverified", "account is not verified")
}

// ----------------------
// Not Found (404)
// ----------------------

func ErrUserNotFound() *Error {
	return New(KindNotFound, "user_not_found", "user not found")
}

func ErrNoPendingVerification() *Error {
	return New(KindNotFound, "no_pending_verification", "no pending verification, request a new code")
}

// ----------------------
// Conflict (409)
// ----------------------

func ErrUserExists() *Error {
	return New(KindConflict, "user_exists", "user already exists")
}

// ----------------------
// Rate limit (429)
// ----------------------

func ErrRateLimited(scope string) *Error {
	return WithMeta(New(KindRateLimited, "rate_limited", "too many requests"), map[string]string{
		"scope": scope,
	})
}

func ErrTooManyAttempts() *Error {
	return New(KindRateLimited, "too_many_attempts", "too many attempts, request a new code")
}

func ErrResendTooSoon(retryAfter time.Duration) *Error {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return WithMeta(New(KindRateLimited, "resend_too_soon", "a code was sent recently, try again shortly"), map[string]string{
		"retry_after_seconds": strconv.Itoa(secs),
	})
}

// ----------------------
// Infrastructure / internal (5xx)
// ----------------------

func ErrDBUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "db_unavailable", "database unavailable", cause)
}

func ErrRedisUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "redis_unavailable", "cache unavailable", cause)
}

func ErrRabbitUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "rabbit_unavailable", "message broker unavailable", cause)
}

// Never returned to clients from IssueCode; used for audit and logs.
func ErrDeliveryFailed(cause error) *Error {
	return Wrap(KindInfrastructure, "delivery_failed", "verification code delivery failed", cause)
}

func ErrUpstreamUnavailable(cause error) *Error {
	return Wrap(KindUpstream, "upstream_unavailable", "upstream service unreachable", cause)
}

func ErrHashFailed(cause error) *Error {
	return Wrap(KindInternal, "hash_failed", "password hashing failed", cause)
}

func ErrTokenSignFailed(cause error) *Error {
	return Wrap(KindInternal, "token_sign_failed", "token signing failed", cause)
}

func ErrRandomFailed(cause error) *Error {
	return Wrap(KindInternal, "random_failed", "random generation failed", cause)
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, "internal_error", "internal error", cause)
}

func ErrInvalidRole(role string) *Error {
	return WithMeta(
		New(KindValidation, "invalid_role", "invalid role"),
		map[string]string{"role": role},
	)
}
