package pgstore

import (
	"context"
	"errors"
	"testing"

	"dropship-platform/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify_KeepsAppErrors(t *testing.T) {
	if err := classify(apperr.ErrInsufficientBalance); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected sentinel preserved, got %v", err)
	}
	if err := classify(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error preserved, got %v", err)
	}
	err := classify(errors.New("connection reset"))
	if apperr.KindOf(err) != apperr.KindRemote {
		t.Fatalf("expected remote kind, got %q", apperr.KindOf(err))
	}
	if classify(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestClassify_LockConflictsAreRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := classify(&pgconn.PgError{Code: code})
		if apperr.KindOf(err) != apperr.KindConflict {
			t.Fatalf("%s: expected conflict, got %v", code, err)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(entries))
	}
}

func TestNullHelpers(t *testing.T) {
	if nullIfEmpty("") != nil || nullIfEmpty("x") != "x" {
		t.Fatalf("nullIfEmpty mismatch")
	}
	if got := rolesArg(nil); len(got) != 0 {
		t.Fatalf("expected empty roles")
	}
}
