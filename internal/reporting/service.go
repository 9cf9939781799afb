package reporting

import (
	"context"
	"errors"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = apperr.ErrInvalidArgument.WithMessage("reporting: user and a valid range are required")

// Repository abstracts data access for reporting. store.Store satisfies it.
//
// Reports only read the append-only ledgers, never the balance projections.
type Repository interface {
	ListWalletTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.WalletTransaction, error)
	ListPostpaidTransactions(ctx context.Context, userID string) ([]domain.PostpaidTransaction, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(userID string, r TimeRange) bool {
	if userID == "" {
		return false
	}
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) WalletSummary(ctx context.Context, req WalletSummaryRequest) (WalletSummary, error) {
	if !validRange(req.UserID, req.Range) {
		return WalletSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return WalletSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListWalletTransactions(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return WalletSummary{}, err
	}

	out := WalletSummary{
		UserID:          req.UserID,
		Range:           req.Range,
		TotalCredited:   decimal.Zero,
		TotalDebited:    decimal.Zero,
		PayoutsDebited:  decimal.Zero,
		PayoutsRefunded: decimal.Zero,
		PostpaidRepaid:  decimal.Zero,
		OrderProfit:     decimal.Zero,
		ByType:          map[string]decimal.Decimal{},
	}
	for _, t := range rows {
		out.Transactions++
		if t.Amount.IsPositive() {
			out.TotalCredited = out.TotalCredited.Add(t.Amount)
		} else {
			out.TotalDebited = out.TotalDebited.Add(t.Amount.Neg())
		}
		out.ByType[t.Type] = out.ByType[t.Type].Add(t.Amount)

		switch t.Type {
		case domain.WalletTxPayoutDebit:
			out.PayoutsDebited = out.PayoutsDebited.Add(t.Amount.Neg())
		case domain.WalletTxPayoutRefund:
			out.PayoutsRefunded = out.PayoutsRefunded.Add(t.Amount)
		case domain.WalletTxPostpaidRepayment:
			out.PostpaidRepaid = out.PostpaidRepaid.Add(t.Amount.Neg())
		case domain.WalletTxOrderProfit, domain.WalletTxOrderProfitReversal:
			// net of reversals
			out.OrderProfit = out.OrderProfit.Add(t.Amount)
		}
	}
	out.Net = out.TotalCredited.Sub(out.TotalDebited)
	return out, nil
}

func (s *Service) DuesSummary(ctx context.Context, req WalletSummaryRequest) (DuesSummary, error) {
	if !validRange(req.UserID, req.Range) {
		return DuesSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return DuesSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListPostpaidTransactions(ctx, req.UserID)
	if err != nil {
		return DuesSummary{}, err
	}

	out := DuesSummary{
		UserID:       req.UserID,
		Range:        req.Range,
		CreditUsed:   decimal.Zero,
		CreditRepaid: decimal.Zero,
		Adjustments:  decimal.Zero,
		ClosingUsed:  decimal.Zero,
	}
	var last time.Time
	for _, t := range rows {
		if t.CreatedAt.Before(req.Range.From) || !t.CreatedAt.Before(req.Range.To) {
			continue
		}
		switch t.Type {
		case domain.PostpaidTxCreditUsed:
			out.CreditUsed = out.CreditUsed.Add(t.Amount)
		case domain.PostpaidTxCreditRepaid:
			out.CreditRepaid = out.CreditRepaid.Add(t.Amount)
		case domain.PostpaidTxAdjustment:
			out.Adjustments = out.Adjustments.Add(t.BalanceAfter.Sub(t.BalanceBefore))
		}
		if !t.CreatedAt.Before(last) {
			last = t.CreatedAt
			out.ClosingUsed = t.BalanceAfter
		}
	}
	return out, nil
}
