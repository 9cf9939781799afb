// Package postpaid implements the postpaid credit line: drawing credit for
// orders, repaying dues from the wallet and the admin controls around it.
package postpaid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/functions"
	"dropship-platform/internal/ledger"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store    store.Store
	fn       functions.Invoker
	notifier notify.Notifier
	events   realtime.Publisher
	audit    *audit.Service
	clock    func() time.Time
}

func NewService(st store.Store, fn functions.Invoker, n notify.Notifier, ev realtime.Publisher, au *audit.Service) *Service {
	if n == nil {
		n = notify.Discard{}
	}
	if ev == nil {
		ev = realtime.Nop{}
	}
	return &Service{store: st, fn: fn, notifier: n, events: ev, audit: au, clock: time.Now}
}

func (s *Service) GetStatus(ctx context.Context, userID string) (Status, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return statusOf(p), nil
}

func (s *Service) Transactions(ctx context.Context, userID string) ([]domain.PostpaidTransaction, error) {
	return s.store.ListPostpaidTransactions(ctx, userID)
}

/* ===================== DROPSHIPPER ===================== */

// Repay moves amount from the wallet to outstanding dues.
//
// Orders waiting on postpaid credit are cleared oldest first, and only while
// each next order's base total still fits in what is left of amount. A
// payment that does not cover the oldest order clears nothing but still
// reduces dues.
func (s *Service) Repay(ctx context.Context, userID string, amount decimal.Decimal) (RepayResult, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return RepayResult{}, apperr.ErrInvalidAmount
	}

	var res RepayResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(p.WalletBalance) {
			return apperr.ErrInsufficientBalance
		}
		usedBefore := p.Postpaid.Used
		if amount.GreaterThan(usedBefore) {
			return apperr.ErrExceedsDues
		}
		now := s.clock().UTC()

		pending, err := tx.LockOrdersByStatus(ctx, userID, domain.OrderPostpaidPending)
		if err != nil {
			return err
		}
		var cleared []domain.Order
		remaining := amount
		for _, o := range pending {
			total := o.BaseTotal()
			if total.GreaterThan(remaining) {
				break
			}
			remaining = remaining.Sub(total)
			cleared = append(cleared, o)
		}

		if _, err := ledger.Debit(ctx, tx, &p, amount, ledger.Entry{
			Type:        domain.WalletTxPostpaidRepayment,
			Description: "Postpaid dues repayment",
		}, now); err != nil {
			return err
		}

		p.Postpaid.Used = usedBefore.Sub(amount)
		if err := tx.UpdatePostpaid(ctx, userID, p.Postpaid, now); err != nil {
			return err
		}
		if err := tx.InsertPostpaidTransaction(ctx, domain.PostpaidTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Amount:        amount,
			Type:          domain.PostpaidTxCreditRepaid,
			BalanceBefore: usedBefore,
			BalanceAfter:  p.Postpaid.Used,
			Status:        domain.PostpaidTxCompleted,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		for i := range cleared {
			t := now
			cleared[i].PostpaidPaidAt = &t
			if _, err := orders.ApplyStatus(ctx, tx, &cleared[i], domain.OrderPaidByUser, now); err != nil {
				return err
			}
		}

		res = RepayResult{
			NewPostpaidUsed:  p.Postpaid.Used,
			NewWalletBalance: p.WalletBalance,
			ClearedOrders:    cleared,
		}
		return nil
	})
	if err != nil {
		return RepayResult{}, err
	}
	if res.ClearedOrders == nil {
		res.ClearedOrders = []domain.Order{}
	}

	logger.From(ctx).Info("postpaid repayment",
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.Int("cleared_orders", len(res.ClearedOrders)),
	)
	s.publishAccount(ctx, userID)
	for _, o := range res.ClearedOrders {
		s.events.Publish(ctx, realtime.Event{Type: realtime.EventOrderUpdated, UserID: userID, EntityID: o.ID, Data: o})
	}
	s.notifier.Enqueue(ctx, notify.Intent{
		Channel: notify.ChannelInApp,
		UserID:  userID,
		Type:    "postpaid_repayment",
		Title:   "Postpaid payment received",
		Message: fmt.Sprintf("We received your payment of %s. Outstanding dues: %s.", amount.StringFixed(2), res.NewPostpaidUsed.StringFixed(2)),
	})
	return res, nil
}

// ChargeOrder pays a pending order with postpaid credit.
func (s *Service) ChargeOrder(ctx context.Context, userID, orderID string) (domain.Order, Status, error) {
	var (
		out  domain.Order
		prof domain.Profile
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if !p.Postpaid.EffectiveEnabled() {
			return apperr.ErrPostpaidDisabled
		}
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.ErrOrderNotFound
		}
		if o.Status != domain.OrderPendingPayment {
			return apperr.ErrInvalidTransition.WithMessage("only orders awaiting payment can use postpaid credit")
		}
		total := o.BaseTotal()
		if total.GreaterThan(p.Postpaid.AvailableCredit()) {
			return apperr.ErrCreditLimitExceeded
		}

		now := s.clock().UTC()
		before := p.Postpaid.Used
		p.Postpaid.Used = before.Add(total)
		if err := tx.UpdatePostpaid(ctx, userID, p.Postpaid, now); err != nil {
			return err
		}
		if err := tx.InsertPostpaidTransaction(ctx, domain.PostpaidTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			OrderID:       o.ID,
			Amount:        total,
			Type:          domain.PostpaidTxCreditUsed,
			BalanceBefore: before,
			BalanceAfter:  p.Postpaid.Used,
			Status:        domain.PostpaidTxCompleted,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		if _, err := orders.ApplyStatus(ctx, tx, &o, domain.OrderPostpaidPending, now); err != nil {
			return err
		}
		out, prof = o, p
		return nil
	})
	if err != nil {
		return domain.Order{}, Status{}, err
	}

	st := statusOf(prof)
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventOrderUpdated, UserID: userID, EntityID: out.ID, Data: out})
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPostpaidUpdated, UserID: userID, EntityID: userID, Data: st})
	return out, st, nil
}

/* ===================== ADMIN ===================== */

// AdjustBalance changes outstanding dues by amount (either sign), never below zero.
// The wallet is not touched.
func (s *Service) AdjustBalance(ctx context.Context, adminID, userID string, amount decimal.Decimal, reason string) (domain.PostpaidTransaction, error) {
	amount = domain.RoundMoney(amount)
	if amount.IsZero() {
		return domain.PostpaidTransaction{}, apperr.ErrInvalidAmount.WithMessage("adjustment must not be zero")
	}
	reason = strings.TrimSpace(reason)

	var out domain.PostpaidTransaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		before := p.Postpaid.Used
		after := before.Add(amount)
		if after.IsNegative() {
			after = decimal.Zero
		}
		p.Postpaid.Used = after
		if err := tx.UpdatePostpaid(ctx, userID, p.Postpaid, now); err != nil {
			return err
		}
		out = domain.PostpaidTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Amount:        amount,
			Type:          domain.PostpaidTxAdjustment,
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        domain.PostpaidTxCompleted,
			AdminID:       adminID,
			AdminReason:   reason,
			CreatedAt:     now,
		}
		return tx.InsertPostpaidTransaction(ctx, out)
	})
	if err != nil {
		return domain.PostpaidTransaction{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventPostpaidAdjusted,
		ActorUserID:   adminID,
		SubjectUserID: userID,
		EntityType:    "postpaid_transaction",
		EntityID:      out.ID,
		Message:       reason,
	}, map[string]string{
		"amount":         amount.String(),
		"balance_before": out.BalanceBefore.String(),
		"balance_after":  out.BalanceAfter.String(),
	})
	s.publishAccount(ctx, userID)
	return out, nil
}

func (s *Service) SetEnabled(ctx context.Context, adminID, userID string, enabled bool) (Status, error) {
	return s.mutate(ctx, adminID, userID, "enabled", func(a *domain.PostpaidAccount) error {
		a.Enabled = enabled
		return nil
	})
}

// SetCreditLimit may lower the limit below what is already used.
func (s *Service) SetCreditLimit(ctx context.Context, adminID, userID string, limit decimal.Decimal) (Status, error) {
	return s.mutate(ctx, adminID, userID, "credit_limit", func(a *domain.PostpaidAccount) error {
		if limit.IsNegative() {
			return apperr.ErrInvalidAmount.WithMessage("credit limit must not be negative")
		}
		a.CreditLimit = domain.RoundMoney(limit)
		return nil
	})
}

// SetDueCycle sets the repayment cycle in days; nil clears it.
func (s *Service) SetDueCycle(ctx context.Context, adminID, userID string, days *int) (Status, error) {
	return s.mutate(ctx, adminID, userID, "due_cycle_days", func(a *domain.PostpaidAccount) error {
		if days != nil && *days <= 0 {
			return apperr.ErrInvalidArgument.WithMessage("due cycle must be a positive number of days")
		}
		a.DueCycleDays = days
		return nil
	})
}

func (s *Service) SetAllowPayoutWithDues(ctx context.Context, adminID, userID string, allow bool) (Status, error) {
	return s.mutate(ctx, adminID, userID, "allow_payout_with_dues", func(a *domain.PostpaidAccount) error {
		a.AllowPayoutWithDues = allow
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, adminID, userID, field string, fn func(a *domain.PostpaidAccount) error) (Status, error) {
	var p domain.Profile
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(&p.Postpaid); err != nil {
			return err
		}
		return tx.UpdatePostpaid(ctx, userID, p.Postpaid, s.clock().UTC())
	})
	if err != nil {
		return Status{}, err
	}

	st := statusOf(p)
	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventPostpaidSettingsChanged,
		ActorUserID:   adminID,
		SubjectUserID: userID,
		EntityType:    "profile",
		EntityID:      userID,
		Message:       field,
	}, p.Postpaid)
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPostpaidUpdated, UserID: userID, EntityID: userID, Data: st})
	return st, nil
}

func (s *Service) publishAccount(ctx context.Context, userID string) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return
	}
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPostpaidUpdated, UserID: userID, EntityID: userID, Data: statusOf(p)})
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventWalletUpdated, UserID: userID, EntityID: userID, Data: map[string]any{
		"wallet_balance": p.WalletBalance,
	}})
}
