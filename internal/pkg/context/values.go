// Package context carries request-scoped values that are safe to log.
// The caller's identifier is PII and stays in the transport layer.
package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	roleKey      contextKey = "role"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRole records the authenticated caller's role for log tagging.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func GetRole(ctx context.Context) string {
	return stringValue(ctx, roleKey)
}

func stringValue(ctx context.Context, k contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
