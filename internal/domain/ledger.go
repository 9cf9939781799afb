package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletTransaction is an append-only audit entry for a wallet balance change.
// Amount is signed: credits positive, debits negative.
type WalletTransaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Type        string          `json:"type" db:"type"`
	Description string          `json:"description" db:"description"`
	// ReferenceID links the entry to the order or payout that caused it.
	ReferenceID  string          `json:"reference_id,omitempty" db:"reference_id"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Wallet transaction type tags.
const (
	WalletTxPostpaidRepayment   = "postpaid_repayment"
	WalletTxPayoutDebit         = "payout_debit"
	WalletTxPayoutRefund        = "payout_refund"
	WalletTxOrderProfit         = "order_profit"
	WalletTxOrderProfitReversal = "order_profit_reversal"
	WalletTxAdminAdjustment     = "admin_adjustment"
)

type PostpaidTxType string

const (
	PostpaidTxCreditUsed   PostpaidTxType = "credit_used"
	PostpaidTxCreditRepaid PostpaidTxType = "credit_repaid"
	PostpaidTxAdjustment   PostpaidTxType = "adjustment"
)

type PostpaidTxStatus string

const (
	PostpaidTxPending   PostpaidTxStatus = "pending"
	PostpaidTxCompleted PostpaidTxStatus = "completed"
	PostpaidTxCancelled PostpaidTxStatus = "cancelled"
)

// PostpaidTransaction is an immutable entry in the dues ledger.
// BalanceBefore/BalanceAfter are the postpaid used amounts around the entry.
type PostpaidTransaction struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	OrderID       string           `json:"order_id,omitempty" db:"order_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	Type          PostpaidTxType   `json:"type" db:"type"`
	BalanceBefore decimal.Decimal  `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal  `json:"balance_after" db:"balance_after"`
	Status        PostpaidTxStatus `json:"status" db:"status"`
	AdminID       string           `json:"admin_id,omitempty" db:"admin_id"`
	AdminReason   string           `json:"admin_reason,omitempty" db:"admin_reason"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}
