package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutCompleted PayoutStatus = "completed"
	PayoutCancelled PayoutStatus = "cancelled"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutApproved, PayoutRejected, PayoutCompleted, PayoutCancelled:
		return true
	}
	return false
}

// Debited reports statuses in which the payout amount has left the wallet.
func (s PayoutStatus) Debited() bool {
	return s == PayoutApproved || s == PayoutCompleted
}

// Terminal reports statuses that allow no further transition.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutRejected || s == PayoutCancelled
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:   {PayoutApproved, PayoutRejected, PayoutCancelled, PayoutCompleted},
	PayoutApproved:  {PayoutCompleted, PayoutRejected, PayoutPending},
	PayoutCompleted: {PayoutRejected, PayoutPending},
}

// CanTransition is the payout state machine. Re-applying the current
// non-terminal status is allowed and has no money effect.
func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == to {
		return !s.Terminal()
	}
	for _, next := range payoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PayoutRequest is a withdrawal of wallet balance to an external account.
type PayoutRequest struct {
	ID           string            `json:"id" db:"id"`
	UserID       string            `json:"user_id" db:"user_id"`
	Amount       decimal.Decimal   `json:"amount" db:"amount"`
	Method       string            `json:"method" db:"method"`
	Details      map[string]string `json:"details" db:"details"`
	Status       PayoutStatus      `json:"status" db:"status"`
	AdminNotes   string            `json:"admin_notes,omitempty" db:"admin_notes"`
	CancelReason string            `json:"cancel_reason,omitempty" db:"cancel_reason"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	ProcessedBy  string            `json:"processed_by,omitempty" db:"processed_by"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}
