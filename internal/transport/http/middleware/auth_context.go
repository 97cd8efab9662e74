package middleware

import (
	"context"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	appCtx "github.com/baechuer/pharmacy-auth/internal/pkg/context"
)

type ctxKey string

const (
	ctxIdentifier ctxKey = "identifier"
	ctxRole       ctxKey = "role"
)

// WithUser stores the authenticated caller. The role is also exposed to
// logger.WithCtx; the identifier is not.
func WithUser(ctx context.Context, identifier string, role domain.Role) context.Context {
	ctx = appCtx.WithRole(ctx, string(role))
	ctx = context.WithValue(ctx, ctxIdentifier, identifier)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func IdentifierFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxIdentifier).(string)
	return v, ok && v != ""
}

func RoleFromContext(ctx context.Context) (domain.Role, bool) {
	v, ok := ctx.Value(ctxRole).(domain.Role)
	return v, ok && v != ""
}
