package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

/*
Shared audit capture
*/

type auditEntry struct {
	action string
	fields map[string]string
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *auditLog) record(action string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action: action, fields: fields})
}

func (a *auditLog) find(action string) []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auditEntry
	for _, e := range a.entries {
		if e.action == action {
			out = append(out, e)
		}
	}
	return out
}

/*
Fakes for ports
*/

type fakeUserRepo struct {
	mu sync.Mutex

	byEmail map[string]domain.User

	// injected error (if set, GetByEmail returns it)
	getByEmailErr error
	lookups       int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]domain.User{}}
}

func (f *fakeUserRepo) add(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[u.Email] = u
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups++
	if f.getByEmailErr != nil {
		return domain.User{}, f.getByEmailErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

type fakeHasher struct {
	mu       sync.Mutex
	compares int

	hashFn    func(pw string) (string, error)
	compareFn func(hash, pw string) error
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if h.hashFn != nil {
		return h.hashFn(password)
	}
	return "hash:" + password, nil
}

func (h *fakeHasher) Compare(hash string, password string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()

	if h.compareFn != nil {
		return h.compareFn(hash, password)
	}
	if hash == "hash:"+password {
		return nil
	}
	return errors.New("mismatch")
}

// fakeCodec issues opaque "tok-N" values and remembers their claims.
type fakeCodec struct {
	mu     sync.Mutex
	n      int
	ttl    time.Duration
	now    func() time.Time
	issued map[string]SessionClaims

	issueErr error
}

func newFakeCodec(now func() time.Time) *fakeCodec {
	return &fakeCodec{ttl: time.Hour, now: now, issued: map[string]SessionClaims{}}
}

func (c *fakeCodec) Issue(identifier string, role domain.Role) (SessionToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.issueErr != nil {
		return SessionToken{}, c.issueErr
	}
	c.n++
	now := c.now()
	claims := SessionClaims{
		ID:         fmt.Sprintf("jti-%d", c.n),
		Identifier: identifier,
		Role:       role,
		IssuedAt:   now,
		ExpiresAt:  now.Add(c.ttl),
	}
	value := fmt.Sprintf("tok-%d", c.n)
	c.issued[value] = claims
	return SessionToken{Value: value, ID: claims.ID, ExpiresAt: claims.ExpiresAt}, nil
}

func (c *fakeCodec) Validate(token string) (SessionClaims, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claims, ok := c.issued[token]
	if !ok {
		return SessionClaims{}, domain.ErrTokenRejected(errors.New("unknown token"))
	}
	if c.now().After(claims.ExpiresAt) {
		return SessionClaims{}, domain.ErrTokenRejected(errors.New("expired"))
	}
	return claims, nil
}

// fakeCodeStore serializes Update under one mutex, like the in-memory store.
type fakeCodeStore struct {
	mu   sync.Mutex
	data map[string]domain.VerificationSession

	updateErr error
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{data: map[string]domain.VerificationSession{}}
}

func (f *fakeCodeStore) Get(ctx context.Context, key string) (*domain.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeCodeStore) Put(ctx context.Context, s domain.VerificationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[s.Identifier] = s
	return nil
}

func (f *fakeCodeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCodeStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	var cur *domain.VerificationSession
	if s, ok := f.data[key]; ok {
		cp := s
		cur = &cp
	}
	next, op := fn(cur)
	switch op {
	case OpPut:
		f.data[key] = *next
	case OpDelete:
		delete(f.data, key)
	}
	return nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time

	revokeErr error
	checkErr  error
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: map[string]time.Time{}}
}

func (r *fakeRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revokeErr != nil {
		return r.revokeErr
	}
	r.revoked[tokenID] = until
	return nil
}

func (r *fakeRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checkErr != nil {
		return false, r.checkErr
	}
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type sentCode struct {
	identifier string
	code       string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *fakeMailer) SendCode(ctx context.Context, identifier, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{identifier: identifier, code: code})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentCode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected a code to be sent")
	}
	return m.sent[len(m.sent)-1]
}

/*
Test clock
*/

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

/*
Service builder
*/

const testSalt = "test-master-salt"

type testEnv struct {
	svc     *Service
	users   *fakeUserRepo
	hasher  *fakeHasher
	codec   *fakeCodec
	codes   *fakeCodeStore
	revoked *fakeRevocations
	mailer  *fakeMailer
	audit   *auditLog
	clock   *testClock
}

func newSvcForTest(t *testing.T) *testEnv {
	t.Helper()
	return newSvcForTestWithConfig(t, Config{
		CodeTTL:            10 * time.Minute,
		CodeMaxAttempts:    5,
		CodeResendInterval: 0,
		MailTimeout:        time.Second,
		MasterCodeSalt:     testSalt,
	})
}

func newSvcForTestWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	env := &testEnv{
		users:   newFakeUserRepo(),
		hasher:  &fakeHasher{},
		codec:   newFakeCodec(clock.Now),
		codes:   newFakeCodeStore(),
		revoked: newFakeRevocations(),
		mailer:  &fakeMailer{},
		audit:   &auditLog{},
		clock:   clock,
	}
	env.svc = NewService(env.users, env.hasher, env.codec, env.codes, env.revoked, env.mailer, cfg).
		WithAudit(env.audit.record).
		WithClock(clock.Now)
	return env
}

func (e *testEnv) addUser(email, password string, role domain.Role, secondFactor bool) domain.User {
	u := domain.User{
		ID:                   "id-" + email,
		Email:                email,
		PasswordHash:         "hash:" + password,
		Role:                 role,
		EmailVerified:        true,
		SecondFactorRequired: secondFactor,
	}
	e.users.add(u)
	return u
}
