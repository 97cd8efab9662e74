package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/response"
)

// fakeSessions maps raw cookie values to claims.
type fakeSessions struct {
	byToken map[string]auth.SessionClaims
	err     error
}

func (f *fakeSessions) ValidateSession(_ context.Context, token string) (auth.SessionClaims, error) {
	if f.err != nil {
		return auth.SessionClaims{}, f.err
	}
	c, ok := f.byToken[token]
	if !ok {
		return auth.SessionClaims{}, domain.ErrTokenRejected(errors.New("unknown token"))
	}
	return c, nil
}

func sessionsWith(token, identifier string, role domain.Role) *fakeSessions {
	return &fakeSessions{byToken: map[string]auth.SessionClaims{
		token: {
			ID:         "jti-" + token,
			Identifier: identifier,
			Role:       role,
			IssuedAt:   time.Now(),
			ExpiresAt:  time.Now().Add(time.Hour),
		},
	}}
}

// recorderNext records whether it was reached and the identity it saw.
type recorderNext struct {
	called     bool
	identifier string
	role       domain.Role
}

func (n *recorderNext) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.called = true
		n.identifier, _ = IdentifierFromContext(r.Context())
		n.role, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var writeErr WriteErrFunc = response.WriteError
