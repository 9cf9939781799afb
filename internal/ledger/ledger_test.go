package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"

	"github.com/shopspring/decimal"
)

type recordingWriter struct {
	balances map[string]decimal.Decimal
	txs      []domain.WalletTransaction
	failTx   error
}

func (w *recordingWriter) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	if w.balances == nil {
		w.balances = map[string]decimal.Decimal{}
	}
	w.balances[userID] = balance
	return nil
}

func (w *recordingWriter) InsertWalletTransaction(ctx context.Context, t domain.WalletTransaction) error {
	if w.failTx != nil {
		return w.failTx
	}
	w.txs = append(w.txs, t)
	return nil
}

func TestDebit_RecordsNegativeEntry(t *testing.T) {
	w := &recordingWriter{}
	p := &domain.Profile{UserID: "u1", WalletBalance: decimal.NewFromInt(100)}
	now := time.Unix(1700000000, 0).UTC()

	tx, err := Debit(context.Background(), w, p, decimal.NewFromInt(40), Entry{Type: domain.WalletTxPayoutDebit, ReferenceID: "p1"}, now)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(-40)) {
		t.Fatalf("expected signed amount -40, got %s", tx.Amount)
	}
	if !p.WalletBalance.Equal(decimal.NewFromInt(60)) || !w.balances["u1"].Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected balance 60, got profile=%s stored=%s", p.WalletBalance, w.balances["u1"])
	}
	if len(w.txs) != 1 || w.txs[0].ReferenceID != "p1" {
		t.Fatalf("expected one ledger entry referencing p1, got %+v", w.txs)
	}
}

func TestDebit_NeverGoesNegative(t *testing.T) {
	w := &recordingWriter{}
	p := &domain.Profile{UserID: "u1", WalletBalance: decimal.NewFromInt(10)}

	_, err := Debit(context.Background(), w, p, decimal.NewFromInt(11), Entry{Type: domain.WalletTxPayoutDebit}, time.Now())
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if len(w.txs) != 0 || !p.WalletBalance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected no mutation")
	}
}

func TestCredit_RejectsNonPositive(t *testing.T) {
	p := &domain.Profile{UserID: "u1"}
	if _, err := Credit(context.Background(), &recordingWriter{}, p, decimal.Zero, Entry{Type: "x"}, time.Now()); !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCredit_BalanceUntouchedWhenEntryFails(t *testing.T) {
	w := &recordingWriter{failTx: errors.New("boom")}
	p := &domain.Profile{UserID: "u1", WalletBalance: decimal.NewFromInt(5)}
	if _, err := Credit(context.Background(), w, p, decimal.NewFromInt(5), Entry{Type: domain.WalletTxOrderProfit}, time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if !p.WalletBalance.Equal(decimal.NewFromInt(5)) || len(w.balances) != 0 {
		t.Fatalf("balance must not move without a ledger entry")
	}
}
