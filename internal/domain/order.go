package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPendingPayment  OrderStatus = "pending_payment"
	OrderPaidByUser      OrderStatus = "paid_by_user"
	OrderProcessing      OrderStatus = "processing"
	OrderCompleted       OrderStatus = "completed"
	OrderCancelled       OrderStatus = "cancelled"
	OrderPostpaidPending OrderStatus = "postpaid_pending"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderPaidByUser, OrderProcessing, OrderCompleted, OrderCancelled, OrderPostpaidPending:
		return true
	}
	return false
}

// Paid reports the statuses that count as paid for proof/timestamp bookkeeping.
func (s OrderStatus) Paid() bool {
	return s == OrderPaidByUser || s == OrderProcessing || s == OrderCompleted
}

// CanTransition is the single rule for order status changes made by staff.
// postpaid_pending is entered only by charging the order to postpaid credit.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if !s.Valid() || !to.Valid() || s == to {
		return false
	}
	return to != OrderPostpaidPending
}

// SettlesOutsideCredit reports the statuses that end an order's claim on
// postpaid credit when it leaves postpaid_pending unrepaid: the order was
// dropped, reopened for payment, or paid by other means. Moving on to
// processing or completed keeps the charge owed.
func (s OrderStatus) SettlesOutsideCredit() bool {
	return s == OrderCancelled || s == OrderPendingPayment || s == OrderPaidByUser
}

// Order is the ledger-relevant subset of a dropshipper order.
type Order struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	OrderNumber  string          `json:"order_number" db:"order_number"`
	Status       OrderStatus     `json:"status" db:"status"`
	BasePrice    decimal.Decimal `json:"base_price" db:"base_price"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	Quantity     int             `json:"quantity" db:"quantity"`

	PaymentProofURL string     `json:"payment_proof_url,omitempty" db:"payment_proof_url"`
	PaidAt          *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	PostpaidPaidAt  *time.Time `json:"postpaid_paid_at,omitempty" db:"postpaid_paid_at"`

	// WalletCredited is the profit currently credited to the owner's wallet
	// for this order. Only the wallet sync hook changes it.
	WalletCredited decimal.Decimal `json:"wallet_credited" db:"wallet_credited"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BaseTotal is basePrice * quantity, the amount owed to the platform.
func (o Order) BaseTotal() decimal.Decimal {
	return o.BasePrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// Profit is (sellingPrice - basePrice) * quantity, floored at zero.
func (o Order) Profit() decimal.Decimal {
	p := o.SellingPrice.Sub(o.BasePrice).Mul(decimal.NewFromInt(int64(o.Quantity)))
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}
