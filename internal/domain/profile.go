// Package domain holds the platform's entities and the closed status enums
// that govern their lifecycles.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile is a dropshipper account with its embedded wallet and postpaid line.
//
// Money invariant: WalletBalance never goes negative and is only changed
// together with an appended WalletTransaction (see internal/ledger).
type Profile struct {
	UserID   string `json:"user_id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
	Email    string `json:"email" db:"email"`

	WalletBalance decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
	Postpaid      PostpaidAccount `json:"postpaid"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PostpaidAccount is the revolving credit line embedded in a profile.
//
// Used may exceed CreditLimit after an admin adjustment or a lowered limit;
// that is tolerated, and AvailableCredit clamps at zero.
type PostpaidAccount struct {
	Enabled             bool            `json:"enabled" db:"postpaid_enabled"`
	CreditLimit         decimal.Decimal `json:"credit_limit" db:"postpaid_credit_limit"`
	Used                decimal.Decimal `json:"used" db:"postpaid_used"`
	DueCycleDays        *int            `json:"due_cycle_days,omitempty" db:"postpaid_due_cycle_days"`
	AllowPayoutWithDues bool            `json:"allow_payout_with_dues" db:"allow_payout_with_dues"`
}

// AvailableCredit is max(0, CreditLimit - Used).
func (a PostpaidAccount) AvailableCredit() decimal.Decimal {
	avail := a.CreditLimit.Sub(a.Used)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// EffectiveEnabled reports whether the user may draw on postpaid credit.
// A non-zero limit enables the line even when the toggle is off.
func (a PostpaidAccount) EffectiveEnabled() bool {
	return a.Enabled || a.CreditLimit.IsPositive()
}

// HasDues reports outstanding postpaid dues.
func (a PostpaidAccount) HasDues() bool {
	return a.Used.IsPositive()
}

// MoneyScale is the number of decimal places stored for amounts.
const MoneyScale = 2

// RoundMoney rounds an inbound amount to the stored scale.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyScale) }
