package settings

import (
	"context"
	"errors"
	"testing"

	"dropship-platform/internal/apperr"

	"github.com/shopspring/decimal"
)

func TestService_DefaultsWhenUnset(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	p, err := svc.Payout(context.Background())
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if !p.MinPayout.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected default min payout 10, got %s", p.MinPayout)
	}
	c, _ := svc.Chat(context.Background())
	if c.WelcomeMessage == "" {
		t.Fatalf("expected default welcome message")
	}
}

func TestService_UpdatePayoutRoundTrips(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.UpdatePayout(context.Background(), "admin-1", Payout{MinPayout: decimal.NewFromInt(25), EnabledMethods: []string{" bank ", "", "usdt"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ := svc.Payout(context.Background())
	if !p.MinPayout.Equal(decimal.NewFromInt(25)) || len(p.EnabledMethods) != 2 || p.EnabledMethods[0] != "bank" {
		t.Fatalf("unexpected payout settings %+v", p)
	}
	if p.AllowsMethod("paypal") || !p.AllowsMethod("usdt") {
		t.Fatalf("method filter mismatch")
	}
}

func TestService_RejectsNegativeMinimum(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.UpdatePayout(context.Background(), "a", Payout{MinPayout: decimal.NewFromInt(-1)})
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestChat_ClosingText(t *testing.T) {
	c := Chat{ClosingMessage: "Closed: {reason}"}
	if got := c.ClosingText("idle"); got != "Closed: idle" {
		t.Fatalf("unexpected %q", got)
	}
	if got := c.ClosingText(""); got != "Closed: resolved" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestPayout_AllowsAnyMethodWhenUnrestricted(t *testing.T) {
	if !(Payout{}).AllowsMethod("bank") || (Payout{}).AllowsMethod("") {
		t.Fatalf("unrestricted settings accept any non-empty method")
	}
}
