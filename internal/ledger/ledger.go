// Package ledger owns every write to a profile's wallet balance.
//
// Money invariants:
// - No balance update without a WalletTransaction appended in the same unit of work
// - The balance never goes below zero
// - The caller holds the profile lock (store.Tx.LockProfile) for the whole unit of work
package ledger

import (
	"context"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer is the subset of a store transaction the ledger needs.
type Writer interface {
	UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error
	InsertWalletTransaction(ctx context.Context, t domain.WalletTransaction) error
}

// Entry describes why the balance moved.
type Entry struct {
	Type        string
	Description string
	ReferenceID string
}

// Credit adds amount to p's wallet and records it.
// p is updated in place so later steps of the same unit of work see the new balance.
func Credit(ctx context.Context, w Writer, p *domain.Profile, amount decimal.Decimal, e Entry, now time.Time) (domain.WalletTransaction, error) {
	if !amount.IsPositive() {
		return domain.WalletTransaction{}, apperr.ErrInvalidAmount
	}
	return apply(ctx, w, p, amount, e, now)
}

// Debit removes amount from p's wallet and records it as a negative entry.
func Debit(ctx context.Context, w Writer, p *domain.Profile, amount decimal.Decimal, e Entry, now time.Time) (domain.WalletTransaction, error) {
	if !amount.IsPositive() {
		return domain.WalletTransaction{}, apperr.ErrInvalidAmount
	}
	if p.WalletBalance.LessThan(amount) {
		return domain.WalletTransaction{}, apperr.ErrInsufficientBalance
	}
	return apply(ctx, w, p, amount.Neg(), e, now)
}

func apply(ctx context.Context, w Writer, p *domain.Profile, delta decimal.Decimal, e Entry, now time.Time) (domain.WalletTransaction, error) {
	if e.Type == "" {
		return domain.WalletTransaction{}, apperr.ErrInvalidArgument
	}
	next := p.WalletBalance.Add(delta)

	t := domain.WalletTransaction{
		ID:           uuid.NewString(),
		UserID:       p.UserID,
		Amount:       delta,
		Type:         e.Type,
		Description:  e.Description,
		ReferenceID:  e.ReferenceID,
		BalanceAfter: next,
		CreatedAt:    now,
	}
	if err := w.InsertWalletTransaction(ctx, t); err != nil {
		return domain.WalletTransaction{}, err
	}
	if err := w.UpdateWalletBalance(ctx, p.UserID, next, now); err != nil {
		return domain.WalletTransaction{}, err
	}
	p.WalletBalance = next
	p.UpdatedAt = now
	return t, nil
}
