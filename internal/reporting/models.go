package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// WalletSummaryRequest requests aggregated wallet movements for one dropshipper.

type WalletSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

// WalletSummary is derived from immutable wallet transactions only.
type WalletSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCredited decimal.Decimal `json:"total_credited"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
	Net           decimal.Decimal `json:"net"`

	PayoutsDebited  decimal.Decimal `json:"payouts_debited"`
	PayoutsRefunded decimal.Decimal `json:"payouts_refunded"`
	PostpaidRepaid  decimal.Decimal `json:"postpaid_repaid"`
	OrderProfit     decimal.Decimal `json:"order_profit"`

	// ByType is the signed net per wallet transaction type.
	ByType map[string]decimal.Decimal `json:"by_type"`

	Transactions int `json:"transactions"`
}

// DuesSummary aggregates the postpaid ledger over a range.
type DuesSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	CreditUsed   decimal.Decimal `json:"credit_used"`
	CreditRepaid decimal.Decimal `json:"credit_repaid"`
	Adjustments  decimal.Decimal `json:"adjustments"`
	// ClosingUsed is the used amount after the last entry in range.
	ClosingUsed decimal.Decimal `json:"closing_used"`
}
