package orders

import (
	"context"
	"fmt"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/ledger"
	"dropship-platform/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Change describes what ApplyStatus did.
type Change struct {
	From domain.OrderStatus
	To   domain.OrderStatus
	// WalletDelta is the profit credited (positive) or reversed (negative).
	WalletDelta decimal.Decimal
	// DuesReleased is the postpaid charge dropped because the order left
	// postpaid_pending without being repaid.
	DuesReleased decimal.Decimal
}

// ApplyStatus is the only code that writes an order's status. It runs inside
// the caller's unit of work and keeps the owner's wallet in sync with the new
// status: a completed order holds its profit, any other status holds nothing.
// Only the difference to what the order already holds is applied, so toggling
// the status back and forth never double-credits.
//
// An order leaving postpaid_pending unrepaid (PostpaidPaidAt unset) for a
// status that settles outside credit has its credit_used charge released
// from the owner's dues in the same unit of work.
//
// It does not check who may request the transition; callers do.
func ApplyStatus(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus, now time.Time) (Change, error) {
	if !to.Valid() {
		return Change{}, apperr.ErrInvalidArgument.WithMessage("unknown order status %q", to)
	}
	ch := Change{From: o.Status, To: to, WalletDelta: decimal.Zero, DuesReleased: decimal.Zero}
	if o.Status == to {
		return ch, apperr.ErrInvalidTransition.WithMessage("order is already %s", to)
	}

	switch {
	case to == domain.OrderCompleted:
		t := now
		o.CompletedAt = &t
	case o.Status.Paid() && (to == domain.OrderPendingPayment || to == domain.OrderCancelled):
		o.PaidAt = nil
		o.PaymentProofURL = ""
	}
	if to == domain.OrderPaidByUser && o.PaidAt == nil {
		t := now
		o.PaidAt = &t
	}

	if o.Status == domain.OrderPostpaidPending && o.PostpaidPaidAt == nil && to.SettlesOutsideCredit() {
		released, err := releaseDues(ctx, tx, o, to, now)
		if err != nil {
			return Change{}, err
		}
		ch.DuesReleased = released
	}

	delta, err := syncWallet(ctx, tx, o, to, now)
	if err != nil {
		return Change{}, err
	}
	ch.WalletDelta = delta

	o.Status = to
	o.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, *o); err != nil {
		return Change{}, err
	}
	return ch, nil
}

func syncWallet(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus, now time.Time) (decimal.Decimal, error) {
	target := decimal.Zero
	if to == domain.OrderCompleted {
		target = o.Profit()
	}
	delta := target.Sub(o.WalletCredited)
	if delta.IsZero() {
		return delta, nil
	}

	p, err := tx.LockProfile(ctx, o.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	if delta.IsPositive() {
		_, err = ledger.Credit(ctx, tx, &p, delta, ledger.Entry{
			Type:        domain.WalletTxOrderProfit,
			Description: fmt.Sprintf("Profit from order %s", o.OrderNumber),
			ReferenceID: o.ID,
		}, now)
	} else {
		_, err = ledger.Debit(ctx, tx, &p, delta.Neg(), ledger.Entry{
			Type:        domain.WalletTxOrderProfitReversal,
			Description: fmt.Sprintf("Profit reversed for order %s", o.OrderNumber),
			ReferenceID: o.ID,
		}, now)
	}
	if err != nil {
		return decimal.Zero, err
	}
	o.WalletCredited = target
	return delta, nil
}

// releaseDues lowers postpaid_used by the order's base total, never below
// zero, and records the reduction as an adjustment.
func releaseDues(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus, now time.Time) (decimal.Decimal, error) {
	p, err := tx.LockProfile(ctx, o.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	before := p.Postpaid.Used
	after := before.Sub(o.BaseTotal())
	if after.IsNegative() {
		after = decimal.Zero
	}
	released := before.Sub(after)
	if released.IsZero() {
		return released, nil
	}

	p.Postpaid.Used = after
	if err := tx.UpdatePostpaid(ctx, o.UserID, p.Postpaid, now); err != nil {
		return decimal.Zero, err
	}
	err = tx.InsertPostpaidTransaction(ctx, domain.PostpaidTransaction{
		ID:            uuid.NewString(),
		UserID:        o.UserID,
		OrderID:       o.ID,
		Amount:        released,
		Type:          domain.PostpaidTxAdjustment,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        domain.PostpaidTxCompleted,
		AdminReason:   fmt.Sprintf("Order %s moved to %s before repayment", o.OrderNumber, to),
		CreatedAt:     now,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return released, nil
}
