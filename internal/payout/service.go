// Package payout handles withdrawal requests against the wallet balance.
//
// Requesting a payout only places a soft hold (the pending request). The
// wallet moves when an admin processes the request into or out of a debited
// status.
package payout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/ledger"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store    store.Store
	settings *settings.Service
	notifier notify.Notifier
	events   realtime.Publisher
	audit    *audit.Service
	guard    Guard
	clock    func() time.Time
}

type Option func(*Service)

// WithGuard enables the per-user in-flight guard on Create.
func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

func NewService(st store.Store, cfg *settings.Service, n notify.Notifier, ev realtime.Publisher, au *audit.Service, opts ...Option) *Service {
	s := &Service{store: st, settings: cfg, notifier: n, events: ev, audit: au, guard: noGuard{}, clock: time.Now}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.events == nil {
		s.events = realtime.Nop{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateRequest struct {
	Amount  decimal.Decimal   `json:"amount"`
	Method  string            `json:"method"`
	Details map[string]string `json:"details"`
}

type ProcessRequest struct {
	Status domain.PayoutStatus `json:"status"`
	// PreviousStatus is the status the admin saw; when set it must still be current.
	PreviousStatus domain.PayoutStatus `json:"previous_status,omitempty"`
	AdminNotes     string              `json:"admin_notes,omitempty"`
}

/* ===================== DROPSHIPPER ===================== */

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (domain.PayoutRequest, error) {
	amount := domain.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return domain.PayoutRequest{}, apperr.ErrInvalidAmount
	}
	method := strings.TrimSpace(req.Method)
	cfg, err := s.settings.Payout(ctx)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if !cfg.AllowsMethod(method) {
		return domain.PayoutRequest{}, apperr.ErrInvalidArgument.WithMessage("payout method %q is not available", method)
	}

	release, err := s.guard.Acquire(ctx, userID)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	defer release()

	var (
		out  domain.PayoutRequest
		prof domain.Profile
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if err := checkEligible(p, amount, cfg.MinPayout); err != nil {
			return err
		}
		pending, err := tx.SumPendingPayouts(ctx, userID, "")
		if err != nil {
			return err
		}
		if pending.Add(amount).GreaterThan(p.WalletBalance) {
			return apperr.ErrInsufficientAvailable
		}

		now := s.clock().UTC()
		out = domain.PayoutRequest{
			ID:        uuid.NewString(),
			UserID:    userID,
			Amount:    amount,
			Method:    method,
			Details:   req.Details,
			Status:    domain.PayoutPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		prof = p
		return tx.InsertPayout(ctx, out)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventPayoutRequested,
		ActorUserID:   userID,
		ActorRole:     "dropshipper",
		SubjectUserID: userID,
		EntityType:    "payout_request",
		EntityID:      out.ID,
		Message:       fmt.Sprintf("%s via %s", amount.StringFixed(2), method),
	}, nil)
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPayoutUpdated, UserID: userID, EntityID: out.ID, Data: out})
	notify.EnqueueBoth(ctx, s.notifier, notify.Intent{
		Audience: notify.AudienceAdmin,
		Type:     "new_payout_request",
		Title:    "New payout request",
		Message:  fmt.Sprintf("%s requested a payout of %s via %s.", displayName(prof), amount.StringFixed(2), method),
		Data: map[string]any{
			"userName":  displayName(prof),
			"userEmail": prof.Email,
			"amount":    amount.StringFixed(2),
			"method":    method,
			"payoutId":  out.ID,
		},
	})
	return out, nil
}

// checkEligible applies the balance rules in order: dues block, dues hold, minimum.
func checkEligible(p domain.Profile, amount, minPayout decimal.Decimal) error {
	acct := p.Postpaid
	if acct.HasDues() && !acct.AllowPayoutWithDues {
		return apperr.ErrDuesBlocked
	}
	hold := decimal.Zero
	if acct.AllowPayoutWithDues {
		hold = acct.Used
	}
	afterHold := p.WalletBalance.Sub(hold)
	if afterHold.IsNegative() {
		afterHold = decimal.Zero
	}
	if amount.GreaterThan(afterHold) {
		return apperr.ErrInsufficientBalance.WithMessage("amount exceeds the %s available after postpaid dues", afterHold.StringFixed(2))
	}
	if amount.LessThan(minPayout) {
		return apperr.ErrBelowMinimum.WithMessage("minimum payout is %s", minPayout.StringFixed(2))
	}
	return nil
}

// Cancel withdraws a pending request. The record is kept.
func (s *Service) Cancel(ctx context.Context, userID, payoutID, reason string) (domain.PayoutRequest, error) {
	var out domain.PayoutRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return apperr.ErrPayoutNotFound
		}
		if p.Status != domain.PayoutPending {
			return apperr.ErrInvalidTransition.WithMessage("only pending payouts can be cancelled")
		}
		p.Status = domain.PayoutCancelled
		p.CancelReason = strings.TrimSpace(reason)
		p.UpdatedAt = s.clock().UTC()
		out = p
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventPayoutCancelled,
		ActorUserID:   userID,
		SubjectUserID: userID,
		EntityType:    "payout_request",
		EntityID:      out.ID,
		Message:       out.CancelReason,
	}, nil)
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPayoutUpdated, UserID: userID, EntityID: out.ID, Data: out})
	return out, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.PayoutRequest, error) {
	return s.store.ListPayouts(ctx, store.PayoutFilter{UserID: userID})
}

/* ===================== ADMIN ===================== */

func (s *Service) ListAll(ctx context.Context, status domain.PayoutStatus) ([]domain.PayoutRequest, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.ErrInvalidArgument.WithMessage("unknown payout status %q", status)
	}
	return s.store.ListPayouts(ctx, store.PayoutFilter{Status: status})
}

// AdminProcess moves a payout through its state machine. The wallet is
// debited on the first move into approved or completed, and refunded when a
// debited payout goes back to pending or is rejected. Repeating a status is a
// no-op for the wallet.
func (s *Service) AdminProcess(ctx context.Context, adminID, payoutID string, req ProcessRequest) (domain.PayoutRequest, error) {
	if !req.Status.Valid() {
		return domain.PayoutRequest{}, apperr.ErrInvalidArgument.WithMessage("unknown payout status %q", req.Status)
	}

	var (
		out   domain.PayoutRequest
		prev  domain.PayoutStatus
		moved decimal.Decimal
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		prev = p.Status
		if req.PreviousStatus != "" && req.PreviousStatus != prev {
			return apperr.ErrStaleStatus.WithMessage("payout is %s, not %s", prev, req.PreviousStatus)
		}
		if !prev.CanTransition(req.Status) {
			return apperr.ErrInvalidTransition.WithMessage("cannot move payout from %s to %s", prev, req.Status)
		}

		now := s.clock().UTC()
		moved, err = s.applyWallet(ctx, tx, p, prev, req.Status, now)
		if err != nil {
			return err
		}

		p.Status = req.Status
		if notes := strings.TrimSpace(req.AdminNotes); notes != "" {
			p.AdminNotes = notes
		}
		if req.Status == domain.PayoutPending {
			p.ProcessedAt = nil
			p.ProcessedBy = ""
		} else {
			t := now
			p.ProcessedAt = &t
			p.ProcessedBy = adminID
		}
		p.UpdatedAt = now
		out = p
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	logger.From(ctx).Info("payout processed",
		slog.String("payout_id", out.ID),
		slog.String("from", string(prev)),
		slog.String("to", string(out.Status)),
		slog.String("wallet_delta", moved.String()),
	)
	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventPayoutProcessed,
		ActorUserID:   adminID,
		SubjectUserID: out.UserID,
		EntityType:    "payout_request",
		EntityID:      out.ID,
		Message:       fmt.Sprintf("%s -> %s", prev, out.Status),
	}, map[string]string{"wallet_delta": moved.String(), "admin_notes": out.AdminNotes})

	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPayoutUpdated, UserID: out.UserID, EntityID: out.ID, Data: out})
	if !moved.IsZero() {
		s.publishWallet(ctx, out.UserID)
	}
	if prev != out.Status {
		s.notifyProcessed(ctx, out)
	}
	return out, nil
}

func (s *Service) applyWallet(ctx context.Context, tx store.Tx, p domain.PayoutRequest, from, to domain.PayoutStatus, now time.Time) (decimal.Decimal, error) {
	debit := to.Debited() && !from.Debited()
	refund := from.Debited() && (to == domain.PayoutRejected || to == domain.PayoutPending)
	if !debit && !refund {
		return decimal.Zero, nil
	}

	prof, err := tx.LockProfile(ctx, p.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	if debit {
		_, err = ledger.Debit(ctx, tx, &prof, p.Amount, ledger.Entry{
			Type:        domain.WalletTxPayoutDebit,
			Description: fmt.Sprintf("Payout via %s", p.Method),
			ReferenceID: p.ID,
		}, now)
		return p.Amount.Neg(), err
	}
	_, err = ledger.Credit(ctx, tx, &prof, p.Amount, ledger.Entry{
		Type:        domain.WalletTxPayoutRefund,
		Description: fmt.Sprintf("Payout %s refunded", to),
		ReferenceID: p.ID,
	}, now)
	return p.Amount, err
}

func (s *Service) notifyProcessed(ctx context.Context, p domain.PayoutRequest) {
	var title, msg string
	switch p.Status {
	case domain.PayoutApproved:
		title, msg = "Payout approved", fmt.Sprintf("Your payout of %s has been approved.", p.Amount.StringFixed(2))
	case domain.PayoutCompleted:
		title, msg = "Payout completed", fmt.Sprintf("Your payout of %s has been sent.", p.Amount.StringFixed(2))
	case domain.PayoutRejected:
		title, msg = "Payout rejected", fmt.Sprintf("Your payout of %s was rejected.", p.Amount.StringFixed(2))
		if p.AdminNotes != "" {
			msg += " " + p.AdminNotes
		}
	default:
		return
	}

	prof, err := s.store.GetProfile(ctx, p.UserID)
	if err != nil {
		logger.From(ctx).Warn("payout notification skipped", slog.String("payout_id", p.ID), slog.Any("err", err))
		return
	}
	notify.EnqueueBoth(ctx, s.notifier, notify.Intent{
		Audience: notify.AudienceUser,
		UserID:   p.UserID,
		Email:    prof.Email,
		Type:     "payout_" + string(p.Status),
		Title:    title,
		Message:  msg,
		Data: map[string]any{
			"userName":   displayName(prof),
			"amount":     p.Amount.StringFixed(2),
			"method":     p.Method,
			"adminNotes": p.AdminNotes,
		},
	})
}

func (s *Service) publishWallet(ctx context.Context, userID string) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return
	}
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventWalletUpdated, UserID: userID, EntityID: userID, Data: map[string]any{
		"wallet_balance": p.WalletBalance,
	}})
}

func displayName(p domain.Profile) string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
