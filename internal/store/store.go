// Package store defines the persistence contract for ledger, order, payout and
// chat state.
//
// All mutations go through Store.WithTx. Implementations must run fn as one
// atomic unit: if fn returns an error nothing it wrote is kept. Row-returning
// Lock* methods hold the row for the rest of the unit of work.
package store

import (
	"context"
	"time"

	"dropship-platform/internal/domain"

	"github.com/shopspring/decimal"
)

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Reader
	WithTx(ctx context.Context, fn TxFunc) error
}

// PayoutFilter narrows payout listings. Zero values match everything.
type PayoutFilter struct {
	UserID string
	Status domain.PayoutStatus
}

// OrderFilter narrows order listings. Zero values match everything.
type OrderFilter struct {
	UserID string
	Status domain.OrderStatus
}

// Reader holds the non-locking queries. Implementations may serialize them with
// writers, so callers must not use a Reader from inside a TxFunc.
type Reader interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	// ListProfilesWithDues returns profiles whose postpaid used amount is positive.
	ListProfilesWithDues(ctx context.Context) ([]domain.Profile, error)

	ListWalletTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.WalletTransaction, error)
	ListPostpaidTransactions(ctx context.Context, userID string) ([]domain.PostpaidTransaction, error)

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)

	GetPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error)
	ListPayouts(ctx context.Context, f PayoutFilter) ([]domain.PayoutRequest, error)

	GetChatSession(ctx context.Context, userID string) (domain.ChatSession, error)
	ListChatSessions(ctx context.Context, status domain.ChatStatus) ([]domain.ChatSession, error)
	// ListChatMessages returns messages created at or after since, oldest first.
	ListChatMessages(ctx context.Context, userID string, since time.Time) ([]domain.ChatMessage, error)
	CountUnread(ctx context.Context, userID string, roles []domain.SenderRole, since time.Time) (int, error)
	AgentActiveChats(ctx context.Context, agentID string) (int, error)
}

// Tx is the unit-of-work handle passed to a TxFunc.
type Tx interface {
	InsertProfile(ctx context.Context, p domain.Profile) error
	LockProfile(ctx context.Context, userID string) (domain.Profile, error)
	UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error
	UpdatePostpaid(ctx context.Context, userID string, acct domain.PostpaidAccount, at time.Time) error
	InsertWalletTransaction(ctx context.Context, t domain.WalletTransaction) error
	InsertPostpaidTransaction(ctx context.Context, t domain.PostpaidTransaction) error

	InsertOrder(ctx context.Context, o domain.Order) error
	LockOrder(ctx context.Context, orderID string) (domain.Order, error)
	// LockOrdersByStatus returns the user's orders in status, oldest created first.
	LockOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, o domain.Order) error

	InsertPayout(ctx context.Context, p domain.PayoutRequest) error
	LockPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error)
	UpdatePayout(ctx context.Context, p domain.PayoutRequest) error
	// SumPendingPayouts totals the user's pending payouts, excluding excludeID when set.
	SumPendingPayouts(ctx context.Context, userID, excludeID string) (decimal.Decimal, error)

	// LockChatSession returns ErrSessionNotFound when the user has no session yet.
	LockChatSession(ctx context.Context, userID string) (domain.ChatSession, error)
	// InsertChatSessionIfAbsent creates s unless the user already has a
	// session. Concurrent first messages converge on one row.
	InsertChatSessionIfAbsent(ctx context.Context, s domain.ChatSession) error
	UpsertChatSession(ctx context.Context, s domain.ChatSession) error
	InsertChatMessage(ctx context.Context, m domain.ChatMessage) error
	CountMessagesFrom(ctx context.Context, userID string, role domain.SenderRole, since time.Time) (int, error)
	// MarkRead flags unread messages from the given roles as read and returns how many changed.
	MarkRead(ctx context.Context, userID string, roles []domain.SenderRole, at time.Time) (int, error)
	// AdjustAgentChats changes an agent's active chat counter, never below zero.
	AdjustAgentChats(ctx context.Context, agentID string, delta int) (int, error)
}
