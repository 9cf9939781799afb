package postpaid

import (
	"dropship-platform/internal/domain"

	"github.com/shopspring/decimal"
)

// Status is the derived view of a dropshipper's postpaid account.
type Status struct {
	Enabled             bool            `json:"enabled"`
	CreditLimit         decimal.Decimal `json:"credit_limit"`
	UsedCredit          decimal.Decimal `json:"used_credit"`
	AvailableCredit     decimal.Decimal `json:"available_credit"`
	OutstandingDues     decimal.Decimal `json:"outstanding_dues"`
	DueCycleDays        *int            `json:"due_cycle_days,omitempty"`
	AllowPayoutWithDues bool            `json:"allow_payout_with_dues"`
	CanRequestPayout    bool            `json:"can_request_payout"`
	HasOutstandingDues  bool            `json:"has_outstanding_dues"`
}

func statusOf(p domain.Profile) Status {
	a := p.Postpaid
	return Status{
		Enabled:             a.EffectiveEnabled(),
		CreditLimit:         a.CreditLimit,
		UsedCredit:          a.Used,
		AvailableCredit:     a.AvailableCredit(),
		OutstandingDues:     a.Used,
		DueCycleDays:        a.DueCycleDays,
		AllowPayoutWithDues: a.AllowPayoutWithDues,
		CanRequestPayout:    a.Used.IsZero(),
		HasOutstandingDues:  a.HasDues(),
	}
}

type RepayResult struct {
	NewPostpaidUsed  decimal.Decimal `json:"new_postpaid_used"`
	NewWalletBalance decimal.Decimal `json:"new_wallet_balance"`
	ClearedOrders    []domain.Order  `json:"cleared_orders"`
}

// ReminderResult is the send-postpaid-due-reminder response.
type ReminderResult struct {
	Success           bool     `json:"success"`
	EmailsSent        int      `json:"emailsSent"`
	NotificationsSent int      `json:"notificationsSent"`
	Errors            []string `json:"errors,omitempty"`
}
