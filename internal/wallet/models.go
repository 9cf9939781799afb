package wallet

import (
	"time"

	"dropship-platform/internal/domain"

	"github.com/shopspring/decimal"
)

type Balance struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	// Pending is the total of pending payout requests, a soft hold on Balance.
	Pending   decimal.Decimal `json:"pending_payouts"`
	Available decimal.Decimal `json:"available"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AdminAdjustRequest credits (positive) or debits (negative) a wallet by hand.
type AdminAdjustRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type ProvisionRequest struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type Statement struct {
	Balance      Balance                    `json:"balance"`
	Transactions []domain.WalletTransaction `json:"transactions"`
}
