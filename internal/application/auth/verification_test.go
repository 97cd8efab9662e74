package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

func TestIssueCode_UnknownIdentifier_ReportsDeliveredWithoutSending(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)

	res, err := env.svc.IssueCode(context.Background(), "ghost@pharm.test")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !res.Delivered {
		t.Fatalf("expected delivered=true for unknown identifier")
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
	if len(env.codes.data) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestIssueCode_EmptyIdentifier_MissingField(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)

	_, err := env.svc.IssueCode(context.Background(), "   ")
	requireErrCode(t, err, "missing_field")
}

func TestIssueCode_StoresAndSendsSixDigitCode(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("staff@pharm.test", "pw", domain.RoleStaff, true)

	res, err := env.svc.IssueCode(context.Background(), "Staff@Pharm.test")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !res.Delivered {
		t.Fatalf("expected delivered")
	}

	sent := env.mailer.last(t)
	if sent.identifier != "staff@pharm.test" {
		t.Fatalf("expected normalized identifier, got %q", sent.identifier)
	}
	if len(sent.code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", sent.code)
	}
	for _, r := range sent.code {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", sent.code)
		}
	}

	stored := env.codes.data["staff@pharm.test"]
	if stored.Code != sent.code || stored.Attempts != 0 || stored.MaxAttempts != 5 {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	if !stored.ExpiresAt.Equal(env.clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", stored.ExpiresAt)
	}
}

func TestIssueCode_ReplacesPendingCode(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	first := env.mailer.last(t).code

	// Burn an attempt so the reset is observable.
	_, _ = env.svc.VerifyCode(ctx, "s@p.test", "not-it")

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	second := env.mailer.last(t).code

	stored := env.codes.data["s@p.test"]
	if stored.Code != second || stored.Attempts != 0 {
		t.Fatalf("expected fresh session, got %+v", stored)
	}
	if first != second {
		if _, err := env.svc.VerifyCode(ctx, "s@p.test", first); err == nil {
			t.Fatalf("replaced code must not verify")
		}
	}
}

func TestIssueCode_ResendThrottle(t *testing.T) {
	t.Parallel()

	env := newSvcForTestWithConfig(t, Config{
		CodeTTL:            10 * time.Minute,
		CodeMaxAttempts:    5,
		CodeResendInterval: 30 * time.Second,
	})
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(10 * time.Second)
	_, err := env.svc.IssueCode(ctx, "s@p.test")
	requireErrCode(t, err, "resend_too_soon")

	var de *domain.Error
	if !errors.As(err, &de) || de.Meta["retry_after_seconds"] != "20" {
		t.Fatalf("expected retry_after_seconds=20, got %+v", de)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("throttled request must not send, sent=%d", len(env.mailer.sent))
	}

	env.clock.Advance(20 * time.Second)
	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatalf("expected resend after interval, got %v", err)
	}
	if len(env.mailer.sent) != 2 {
		t.Fatalf("expected second send")
	}
}

func TestIssueCode_DeliveryFailure_StillStoresCode(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	env.mailer.err = errors.New("smtp down")

	res, err := env.svc.IssueCode(context.Background(), "s@p.test")
	if err != nil {
		t.Fatalf("delivery failure must not fail the request, got %v", err)
	}
	if res.Delivered {
		t.Fatalf("expected delivered=false")
	}
	if _, ok := env.codes.data["s@p.test"]; !ok {
		t.Fatalf("expected code stored despite delivery failure")
	}

	entries := env.audit.find("auth.code.issue")
	if len(entries) == 0 || entries[len(entries)-1].fields["result"] != "delivery_failed" {
		t.Fatalf("expected delivery_failed audit, got %+v", entries)
	}

	// The master code still works for this identifier.
	vr, err := env.svc.VerifyCode(context.Background(), "s@p.test", MasterCode(testSalt, env.clock.Now()))
	if err != nil {
		t.Fatalf("expected master code to verify, got %v", err)
	}
	if !vr.ViaMasterCode {
		t.Fatalf("expected via master code")
	}
}

func TestIssueCode_StoreFailure_Propagates(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	env.codes.updateErr = domain.ErrRedisUnavailable(errors.New("down"))

	_, err := env.svc.IssueCode(context.Background(), "s@p.test")
	requireErrCode(t, err, "redis_unavailable")
	if len(env.mailer.sent) != 0 {
		t.Fatalf("must not send when the code was not stored")
	}
}

func TestVerifyCode_NoPending(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)

	_, err := env.svc.VerifyCode(context.Background(), "s@p.test", "123456")
	requireErrCode(t, err, "no_pending_verification")
}

func TestVerifyCode_Success_IssuesSessionAndConsumes(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	res, err := env.svc.VerifyCode(ctx, " S@P.test", code)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if res.Role != domain.RoleStaff || res.Identifier != "s@p.test" || res.ViaMasterCode {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Session.Value == "" {
		t.Fatalf("expected session token")
	}

	// Once only.
	_, err = env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrCode(t, err, "no_pending_verification")
}

func TestVerifyCode_WrongCode_CountsAttempt(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	_, err := env.svc.VerifyCode(ctx, "s@p.test", "XXXXXX")
	requireErrCode(t, err, "code_invalid")
	if got := env.codes.data["s@p.test"].Attempts; got != 1 {
		t.Fatalf("expected attempts=1, got %d", got)
	}

	// Still usable after a miss.
	if _, err := env.svc.VerifyCode(ctx, "s@p.test", code); err != nil {
		t.Fatalf("expected correct code to verify after a miss, got %v", err)
	}
}

func TestVerifyCode_TooManyAttempts_DiscardsSession(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	for i := 0; i < 5; i++ {
		_, err := env.svc.VerifyCode(ctx, "s@p.test", "XXXXXX")
		requireErrCode(t, err, "code_invalid")
	}

	// Threshold reached: even the right code is refused and the session dropped.
	_, err := env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrKind(t, err, domain.KindRateLimited, "too_many_attempts")

	_, err = env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrCode(t, err, "no_pending_verification")
}

func TestVerifyCode_Expired_DiscardsSession(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	env.clock.Advance(10*time.Minute + time.Second)

	_, err := env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrCode(t, err, "code_expired")

	_, err = env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrCode(t, err, "no_pending_verification")
}

func TestVerifyCode_AtExactExpiry_StillValid(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	env.clock.Advance(10 * time.Minute)

	if _, err := env.svc.VerifyCode(ctx, "s@p.test", code); err != nil {
		t.Fatalf("expected valid at the expiry instant, got %v", err)
	}
}

func TestVerifyCode_MasterCode_TodayOnly(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleSupervisor, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}

	yesterday := MasterCode(testSalt, env.clock.Now().Add(-24*time.Hour))
	_, err := env.svc.VerifyCode(ctx, "s@p.test", yesterday)
	requireErrCode(t, err, "code_invalid")

	today := MasterCode(testSalt, env.clock.Now())
	res, err := env.svc.VerifyCode(ctx, "s@p.test", today)
	if err != nil {
		t.Fatalf("expected master code to verify, got %v", err)
	}
	if !res.ViaMasterCode || res.Role != domain.RoleSupervisor {
		t.Fatalf("unexpected result %+v", res)
	}

	used := env.audit.find("auth.master_code.used")
	if len(used) != 1 || used[0].fields["identifier"] != "s@p.test" {
		t.Fatalf("expected master code use audited, got %+v", used)
	}
}

func TestVerifyCode_MasterCode_RequiresPendingSession(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)

	_, err := env.svc.VerifyCode(context.Background(), "s@p.test", MasterCode(testSalt, env.clock.Now()))
	requireErrCode(t, err, "no_pending_verification")
}

func TestVerifyCode_RoleReadFresh(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	u := env.addUser("s@p.test", "pw", domain.RoleAssistant, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	u.Role = domain.RoleSupervisor
	env.users.add(u)

	res, err := env.svc.VerifyCode(ctx, "s@p.test", code)
	if err != nil {
		t.Fatal(err)
	}
	if res.Role != domain.RoleSupervisor {
		t.Fatalf("expected role read at verification time, got %q", res.Role)
	}
}

func TestVerifyCode_ConcurrentCorrectSubmissions_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.VerifyCode(ctx, "s@p.test", code); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}
}

func TestIssueCode_IneligibleAccounts_NothingStoredOrSent(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.User{
		"unverified":         {Email: "new@pharm.test", Role: domain.RoleCustomer, EmailVerified: false, SecondFactorRequired: true},
		"direct login":       {Email: "cust@pharm.test", Role: domain.RoleCustomer, EmailVerified: true},
		"unverified, direct": {Email: "both@pharm.test", Role: domain.RoleCustomer},
	}
	for name, u := range cases {
		u := u
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			env := newSvcForTest(t)
			env.users.add(u)

			res, err := env.svc.IssueCode(context.Background(), u.Email)
			if err != nil {
				t.Fatalf("expected nil, got %v", err)
			}
			if !res.Delivered {
				t.Fatalf("expected the same answer as for an eligible account")
			}
			if len(env.mailer.sent) != 0 || len(env.codes.data) != 0 {
				t.Fatalf("expected nothing sent or stored, sent=%d stored=%d", len(env.mailer.sent), len(env.codes.data))
			}

			// Not even the master code opens a session without a pending one.
			_, err = env.svc.VerifyCode(context.Background(), u.Email, MasterCode(testSalt, env.clock.Now()))
			requireErrCode(t, err, "no_pending_verification")
		})
	}
}

func TestVerifyCode_AccountBecameUnverified_NoSession(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	u := env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	u.EmailVerified = false
	env.users.add(u)

	res, err := env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrKind(t, err, domain.KindForbidden, "account_unverified")
	if res.Session.Value != "" {
		t.Fatalf("expected no session token")
	}
}

func TestVerifyCode_SecondFactorTurnedOff_InvalidCredentials(t *testing.T) {
	t.Parallel()

	env := newSvcForTest(t)
	u := env.addUser("s@p.test", "pw", domain.RoleStaff, true)
	ctx := context.Background()

	if _, err := env.svc.IssueCode(ctx, "s@p.test"); err != nil {
		t.Fatal(err)
	}
	code := env.mailer.last(t).code

	u.SecondFactorRequired = false
	env.users.add(u)

	_, err := env.svc.VerifyCode(ctx, "s@p.test", code)
	requireErrCode(t, err, "invalid_credentials")
}
