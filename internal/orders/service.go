// Package orders manages the ledger-relevant part of the order lifecycle.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store    store.Store
	notifier notify.Notifier
	events   realtime.Publisher
	audit    *audit.Service
	clock    func() time.Time
}

func NewService(st store.Store, n notify.Notifier, ev realtime.Publisher, au *audit.Service) *Service {
	if n == nil {
		n = notify.Discard{}
	}
	if ev == nil {
		ev = realtime.Nop{}
	}
	return &Service{store: st, notifier: n, events: ev, audit: au, clock: time.Now}
}

type CreateRequest struct {
	OrderNumber  string          `json:"order_number"`
	BasePrice    decimal.Decimal `json:"base_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     int             `json:"quantity"`
}

// Create records a new order awaiting payment.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (domain.Order, error) {
	if userID == "" || req.Quantity <= 0 {
		return domain.Order{}, apperr.ErrInvalidArgument.WithMessage("quantity must be positive")
	}
	if req.BasePrice.IsNegative() || req.SellingPrice.IsNegative() {
		return domain.Order{}, apperr.ErrInvalidAmount.WithMessage("prices must not be negative")
	}

	now := s.clock().UTC()
	o := domain.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrderNumber:    strings.TrimSpace(req.OrderNumber),
		Status:         domain.OrderPendingPayment,
		BasePrice:      domain.RoundMoney(req.BasePrice),
		SellingPrice:   domain.RoundMoney(req.SellingPrice),
		Quantity:       req.Quantity,
		WalletCredited: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if o.OrderNumber == "" {
		o.OrderNumber = "ORD-" + strings.ToUpper(o.ID[:8])
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockProfile(ctx, userID); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventOrderUpdated, UserID: userID, EntityID: o.ID, Data: o})
	return o, nil
}

// SubmitPaymentProof marks a pending order as paid by the dropshipper.
func (s *Service) SubmitPaymentProof(ctx context.Context, userID, orderID, proofURL string) (domain.Order, error) {
	proofURL = strings.TrimSpace(proofURL)
	if proofURL == "" {
		return domain.Order{}, apperr.Validation("proof_required", "payment proof is required")
	}

	var out domain.Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := lockOwned(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderPendingPayment {
			return apperr.ErrInvalidTransition.WithMessage("only orders awaiting payment accept a payment proof")
		}
		o.PaymentProofURL = proofURL
		if _, err := ApplyStatus(ctx, tx, &o, domain.OrderPaidByUser, s.clock().UTC()); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.events.Publish(ctx, realtime.Event{Type: realtime.EventOrderUpdated, UserID: userID, EntityID: out.ID, Data: out})
	s.notifier.Enqueue(ctx, notify.Intent{
		Channel:  notify.ChannelInApp,
		Audience: notify.AudienceAdmin,
		Type:     "order_payment_submitted",
		Title:    "Order payment submitted",
		Message:  fmt.Sprintf("Payment proof submitted for order %s", out.OrderNumber),
		Data:     map[string]any{"orderId": out.ID, "orderNumber": out.OrderNumber},
	})
	return out, nil
}

// UpdateStatus is the admin status change. Wallet effects happen in ApplyStatus only.
func (s *Service) UpdateStatus(ctx context.Context, adminID, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, apperr.ErrInvalidArgument.WithMessage("unknown order status %q", to)
	}

	var (
		out domain.Order
		ch  Change
	)
	// Profile before order, the lock order every money path uses.
	cur, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := lockOwned(ctx, tx, cur.UserID, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(to) {
			return apperr.ErrInvalidTransition.WithMessage("cannot move order from %s to %s", o.Status, to)
		}
		ch, err = ApplyStatus(ctx, tx, &o, to, s.clock().UTC())
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	logger.From(ctx).Info("order status updated",
		slog.String("order_id", out.ID),
		slog.String("from", string(ch.From)),
		slog.String("to", string(ch.To)),
		slog.String("wallet_delta", ch.WalletDelta.String()),
		slog.String("dues_released", ch.DuesReleased.String()),
	)
	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventOrderStatusChanged,
		ActorUserID:   adminID,
		SubjectUserID: out.UserID,
		EntityType:    "order",
		EntityID:      out.ID,
		Message:       fmt.Sprintf("%s -> %s", ch.From, ch.To),
	}, map[string]string{
		"wallet_delta":  ch.WalletDelta.String(),
		"dues_released": ch.DuesReleased.String(),
	})

	s.events.Publish(ctx, realtime.Event{Type: realtime.EventOrderUpdated, UserID: out.UserID, EntityID: out.ID, Data: out})
	if !ch.WalletDelta.IsZero() {
		s.publishWallet(ctx, out.UserID)
	}
	if !ch.DuesReleased.IsZero() {
		s.publishPostpaid(ctx, out.UserID)
	}
	s.notifyOwner(ctx, out)
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if userID != "" && o.UserID != userID {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, f)
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

func (s *Service) publishPostpaid(ctx context.Context, userID string) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return
	}
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventPostpaidUpdated, UserID: userID, EntityID: userID, Data: map[string]any{
		"used":             p.Postpaid.Used,
		"available_credit": p.Postpaid.AvailableCredit(),
	}})
}

func (s *Service) notifyOwner(ctx context.Context, o domain.Order) {
	p, err := s.store.GetProfile(ctx, o.UserID)
	if err != nil {
		logger.From(ctx).Warn("order notification skipped", slog.String("order_id", o.ID), slog.Any("err", err))
		return
	}
	notify.EnqueueBoth(ctx, s.notifier, notify.Intent{
		Audience: notify.AudienceUser,
		UserID:   o.UserID,
		Email:    p.Email,
		Type:     "order_status_update",
		Title:    "Order status updated",
		Message:  fmt.Sprintf("Your order %s is now %s.", o.OrderNumber, statusLabel(o.Status)),
		Data: map[string]any{
			"userName":    p.FullName,
			"orderNumber": o.OrderNumber,
			"status":      string(o.Status),
		},
	})
}

// lockOwned locks the owner's profile and then the order.
func lockOwned(ctx context.Context, tx store.Tx, userID, orderID string) (domain.Order, error) {
	if _, err := tx.LockProfile(ctx, userID); err != nil {
		return domain.Order{}, err
	}
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o.UserID != userID {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func statusLabel(s domain.OrderStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
