package auth

import (
	"errors"
	"testing"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code=%q, got nil", code)
	}
	if !domain.Is(err, code) {
		t.Fatalf("expected code=%q, got err=%v", code, err)
	}
}

// requireErrKind also pins the HTTP class the error will map to.
func requireErrKind(t *testing.T, err error, kind domain.ErrKind, code string) {
	t.Helper()
	requireErrCode(t, err, code)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != kind {
		t.Fatalf("expected kind=%v for %q, got %v", kind, code, err)
	}
}
