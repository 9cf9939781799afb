package wallet

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/ledger"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/logger"

	"github.com/shopspring/decimal"
)

// Service provides wallet reads and the admin wallet controls.
//
// Money invariants:
// - No balance updates without a ledger entry (see internal/ledger)
// - Ledger is append-only (immutable)
// - All money operations run in one store unit of work
type Service struct {
	store  store.Store
	events realtime.Publisher
	audit  *audit.Service
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(st store.Store, ev realtime.Publisher, au *audit.Service) *Service {
	if ev == nil {
		ev = realtime.Nop{}
	}
	return &Service{store: st, events: ev, audit: au, clock: time.Now}
}

func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, apperr.ErrInvalidArgument
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	pending, err := s.pendingPayouts(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	avail := p.WalletBalance.Sub(pending)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return Balance{UserID: userID, Balance: p.WalletBalance, Pending: pending, Available: avail, UpdatedAt: p.UpdatedAt}, nil
}

// Statement returns the balance and the ledger entries in [from, to). Zero bounds are open.
func (s *Service) Statement(ctx context.Context, userID string, from, to time.Time) (Statement, error) {
	bal, err := s.GetBalance(ctx, userID)
	if err != nil {
		return Statement{}, err
	}
	txs, err := s.store.ListWalletTransactions(ctx, userID, from, to)
	if err != nil {
		return Statement{}, err
	}
	return Statement{Balance: bal, Transactions: txs}, nil
}

func (s *Service) pendingPayouts(ctx context.Context, userID string) (decimal.Decimal, error) {
	rows, err := s.store.ListPayouts(ctx, store.PayoutFilter{UserID: userID, Status: domain.PayoutPending})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, p := range rows {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

// Provision creates the profile row for a user the auth provider already knows.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (domain.Profile, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return domain.Profile{}, apperr.ErrInvalidArgument.WithMessage("user_id required")
	}
	now := s.clock().UTC()
	p := domain.Profile{
		UserID:        req.UserID,
		FullName:      strings.TrimSpace(req.FullName),
		Email:         strings.TrimSpace(req.Email),
		WalletBalance: decimal.Zero,
		Postpaid:      domain.PostpaidAccount{CreditLimit: decimal.Zero, Used: decimal.Zero},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertProfile(ctx, p)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// AdminAdjust performs an admin wallet correction. A reason is mandatory and
// the balance may not go below zero.
func (s *Service) AdminAdjust(ctx context.Context, adminID, userID string, req AdminAdjustRequest) (domain.WalletTransaction, error) {
	amount := domain.RoundMoney(req.Amount)
	reason := strings.TrimSpace(req.Reason)
	if adminID == "" || userID == "" {
		return domain.WalletTransaction{}, apperr.ErrInvalidArgument
	}
	if reason == "" {
		return domain.WalletTransaction{}, apperr.ErrInvalidArgument.WithMessage("reason required")
	}
	if amount.IsZero() {
		return domain.WalletTransaction{}, apperr.ErrInvalidAmount.WithMessage("adjustment must not be zero")
	}

	var out domain.WalletTransaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		e := ledger.Entry{Type: domain.WalletTxAdminAdjustment, Description: reason}
		if amount.IsPositive() {
			out, err = ledger.Credit(ctx, tx, &p, amount, e, s.clock().UTC())
		} else {
			out, err = ledger.Debit(ctx, tx, &p, amount.Neg(), e, s.clock().UTC())
		}
		return err
	})
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	logger.From(ctx).Info("wallet adjusted",
		slog.String("user_id", userID),
		slog.String("admin_id", adminID),
		slog.String("amount", amount.String()),
	)
	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventWalletAdjusted,
		ActorUserID:   adminID,
		SubjectUserID: userID,
		EntityType:    "wallet_transaction",
		EntityID:      out.ID,
		Message:       reason,
	}, map[string]string{"amount": amount.String(), "balance_after": out.BalanceAfter.String()})
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventWalletUpdated, UserID: userID, EntityID: userID, Data: map[string]any{
		"wallet_balance": out.BalanceAfter,
	}})
	return out, nil
}
