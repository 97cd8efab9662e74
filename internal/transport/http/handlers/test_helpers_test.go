package http_handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/memory"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/security"
)

const testMasterSalt = "handler-test-salt"

var testCookie = security.CookieConfig{Name: "session"}

type testEnv struct {
	svc     *auth.Service
	h       *AuthHandler
	users   *memory.UserRepo
	hasher  *security.BcryptHasher
	mailer  *memory.LogMailer
	revoked auth.RevocationStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRevocations(t, memory.NewRevocationStore())
}

func newTestEnvWithRevocations(t *testing.T, revoked auth.RevocationStore) *testEnv {
	t.Helper()

	users := memory.NewUserRepo()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	mailer := memory.NewLogMailer(zerolog.Nop())
	codec := security.NewJWTCodec("handler-test-secret-handler-test-secret", "pharmacy-auth", time.Hour)

	svc := auth.NewService(users, hasher, codec, memory.NewVerificationStore(), revoked, mailer, auth.Config{
		CodeTTL:         10 * time.Minute,
		CodeMaxAttempts: 3,
		MasterCodeSalt:  testMasterSalt,
	})

	return &testEnv{
		svc:     svc,
		h:       NewAuthHandler(svc, testCookie),
		users:   users,
		hasher:  hasher,
		mailer:  mailer,
		revoked: revoked,
	}
}

func (e *testEnv) addUser(t *testing.T, email, password string, role domain.Role, verified, secondFactor bool) {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	_, err = e.users.Create(context.Background(), domain.User{
		ID:                   "id-" + email,
		Email:                email,
		PasswordHash:         hash,
		Role:                 role,
		EmailVerified:        verified,
		SecondFactorRequired: secondFactor,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

// mustJSONBody marshals v to JSON and returns an io.Reader for request body.
func mustJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	return bytes.NewReader(b)
}

// mustReadJSON decodes a flat JSON body into a generic map.
func mustReadJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json failed; body=%s", rr.Body.String())
	}
	return out
}

func post(t *testing.T, h http.HandlerFunc, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		r = mustJSONBody(t, body)
	}
	req := httptest.NewRequest(http.MethodPost, path, r)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

// readCookie finds the live (non-clearing) cookie by name.
func readCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name && c.MaxAge > 0 {
			return c
		}
	}
	return nil
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error {
	return domain.ErrRedisUnavailable(errors.New("down"))
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, nil
}
