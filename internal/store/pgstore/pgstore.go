// Package pgstore implements store.Store on Postgres through database/sql and
// the pgx stdlib driver.
//
// Locking: every Lock* method issues SELECT ... FOR UPDATE, so concurrent money
// operations on the same profile, order, payout or chat session serialize on
// the row for the rest of the transaction.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store { return &Store{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) error {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, sqlTx *sql.Tx) error {
		return fn(ctx, &tx{q: sqlTx})
	})
	return classify(err)
}

// classify keeps apperr values intact and wraps driver failures as remote errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if utils.IsSerializationFailure(err) {
		return apperr.Conflict("tx_conflict", "concurrent update, retry the request")
	}
	return apperr.Remote("database", err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

/* ===================== PROFILES ===================== */

const profileColumns = `
id, full_name, email, wallet_balance,
postpaid_enabled, postpaid_credit_limit, postpaid_used, postpaid_due_cycle_days, allow_payout_with_dues,
created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (domain.Profile, error) {
	var p domain.Profile
	err := r.Scan(
		&p.UserID,
		&p.FullName,
		&p.Email,
		&p.WalletBalance,
		&p.Postpaid.Enabled,
		&p.Postpaid.CreditLimit,
		&p.Postpaid.Used,
		&p.Postpaid.DueCycleDays,
		&p.Postpaid.AllowPayoutWithDues,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func getProfile(ctx context.Context, q queryer, userID string, lock bool) (domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanProfile(q.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, apperr.ErrProfileNotFound
		}
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := getProfile(ctx, s.db, userID, false)
	return p, classify(err)
}

func (s *Store) ListProfilesWithDues(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE postpaid_used > 0 ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

/* ===================== LEDGERS ===================== */

func (s *Store) ListWalletTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.WalletTransaction, error) {
	const q = `
SELECT id, user_id, amount, type, description, COALESCE(reference_id, ''), balance_after, created_at
FROM wallet_transactions
WHERE user_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at, id
`
	rows, err := s.db.QueryContext(ctx, q, userID, timeOrNil(from), timeOrNil(to))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.WalletTransaction, 0)
	for rows.Next() {
		var t domain.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.ReferenceID, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

func (s *Store) ListPostpaidTransactions(ctx context.Context, userID string) ([]domain.PostpaidTransaction, error) {
	const q = `
SELECT id, user_id, COALESCE(order_id, ''), amount, type, balance_before, balance_after, status,
       COALESCE(admin_id, ''), COALESCE(admin_reason, ''), created_at
FROM postpaid_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id
`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.PostpaidTransaction, 0)
	for rows.Next() {
		var t domain.PostpaidTransaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.OrderID,
			&t.Amount,
			&t.Type,
			&t.BalanceBefore,
			&t.BalanceAfter,
			&t.Status,
			&t.AdminID,
			&t.AdminReason,
			&t.CreatedAt,
		); err != nil {
			return nil, classify(err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

/* ===================== ORDERS ===================== */

const orderColumns = `
id, user_id, order_number, status, base_price, selling_price, quantity,
COALESCE(payment_proof_url, ''), paid_at, completed_at, postpaid_paid_at, wallet_credited,
created_at, updated_at`

func scanOrder(r rowScanner) (domain.Order, error) {
	var o domain.Order
	err := r.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.BasePrice,
		&o.SellingPrice,
		&o.Quantity,
		&o.PaymentProofURL,
		&o.PaidAt,
		&o.CompletedAt,
		&o.PostpaidPaidAt,
		&o.WalletCredited,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func queryOrders(ctx context.Context, q queryer, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, classify(err)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text = '' OR user_id = $1) AND ($2::text = '' OR status = $2)
ORDER BY created_at, id`
	out, err := queryOrders(ctx, s.db, q, f.UserID, string(f.Status))
	return out, classify(err)
}

/* ===================== PAYOUTS ===================== */

const payoutColumns = `
id, user_id, amount, method, details, status, COALESCE(admin_notes, ''), COALESCE(cancel_reason, ''),
processed_at, COALESCE(processed_by, ''), created_at, updated_at`

func scanPayout(r rowScanner) (domain.PayoutRequest, error) {
	var (
		p       domain.PayoutRequest
		details []byte
	)
	if err := r.Scan(
		&p.ID,
		&p.UserID,
		&p.Amount,
		&p.Method,
		&details,
		&p.Status,
		&p.AdminNotes,
		&p.CancelReason,
		&p.ProcessedAt,
		&p.ProcessedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return domain.PayoutRequest{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &p.Details); err != nil {
			return domain.PayoutRequest{}, err
		}
	}
	return p, nil
}

func (s *Store) GetPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error) {
	p, err := scanPayout(s.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, payoutID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PayoutRequest{}, apperr.ErrPayoutNotFound
	}
	return p, classify(err)
}

func (s *Store) ListPayouts(ctx context.Context, f store.PayoutFilter) ([]domain.PayoutRequest, error) {
	const q = `SELECT ` + payoutColumns + ` FROM payout_requests
WHERE ($1::text = '' OR user_id = $1) AND ($2::text = '' OR status = $2)
ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, f.UserID, string(f.Status))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.PayoutRequest, 0)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

/* ===================== CHAT ===================== */

const sessionColumns = `
user_id, status, COALESCE(assigned_agent_id, ''), COALESCE(previous_agent_id, ''), COALESCE(close_reason, ''),
user_messages_cleared_at, created_at, updated_at`

func scanSession(r rowScanner) (domain.ChatSession, error) {
	var cs domain.ChatSession
	err := r.Scan(
		&cs.UserID,
		&cs.Status,
		&cs.AssignedAgentID,
		&cs.PreviousAgentID,
		&cs.CloseReason,
		&cs.UserMessagesClearedAt,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
	return cs, err
}

func (s *Store) GetChatSession(ctx context.Context, userID string) (domain.ChatSession, error) {
	cs, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatSession{}, apperr.ErrSessionNotFound
	}
	return cs, classify(err)
}

func (s *Store) ListChatSessions(ctx context.Context, status domain.ChatStatus) ([]domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
WHERE ($1::text = '' OR status = $1) ORDER BY updated_at DESC`, string(status))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.ChatSession, 0)
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, cs)
	}
	return out, classify(rows.Err())
}

func (s *Store) ListChatMessages(ctx context.Context, userID string, since time.Time) ([]domain.ChatMessage, error) {
	const q = `
SELECT id, user_id, sender_role, COALESCE(sender_id, ''), message, is_read, read_at, created_at
FROM chat_messages
WHERE user_id = $1 AND created_at >= $2
ORDER BY created_at, id
`
	rows, err := s.db.QueryContext(ctx, q, userID, since)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.SenderRole, &m.SenderID, &m.Message, &m.IsRead, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, m)
	}
	return out, classify(rows.Err())
}

func rolesArg(roles []domain.SenderRole) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func (s *Store) CountUnread(ctx context.Context, userID string, roles []domain.SenderRole, since time.Time) (int, error) {
	const q = `
SELECT count(*) FROM chat_messages
WHERE user_id = $1 AND NOT is_read AND sender_role = ANY($2) AND created_at >= $3
`
	var n int
	err := s.db.QueryRowContext(ctx, q, userID, rolesArg(roles), since).Scan(&n)
	return n, classify(err)
}

func (s *Store) AgentActiveChats(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT active_chats FROM support_agents WHERE agent_id = $1`, agentID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, classify(err)
}

/* ===================== UNIT OF WORK ===================== */

type tx struct {
	q queryer
}

func (t *tx) InsertProfile(ctx context.Context, p domain.Profile) error {
	const q = `
INSERT INTO profiles (
  id, full_name, email, wallet_balance,
  postpaid_enabled, postpaid_credit_limit, postpaid_used, postpaid_due_cycle_days, allow_payout_with_dues,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := t.q.ExecContext(ctx, q,
		p.UserID,
		p.FullName,
		p.Email,
		p.WalletBalance,
		p.Postpaid.Enabled,
		p.Postpaid.CreditLimit,
		p.Postpaid.Used,
		p.Postpaid.DueCycleDays,
		p.Postpaid.AllowPayoutWithDues,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return apperr.Conflict("profile_exists", "profile already exists")
	}
	return err
}

func (t *tx) LockProfile(ctx context.Context, userID string) (domain.Profile, error) {
	return getProfile(ctx, t.q, userID, true)
}

func (t *tx) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE profiles SET wallet_balance = $2, updated_at = $3 WHERE id = $1`, userID, balance, at)
	return expectOne(res, err, apperr.ErrProfileNotFound)
}

func (t *tx) UpdatePostpaid(ctx context.Context, userID string, a domain.PostpaidAccount, at time.Time) error {
	const q = `
UPDATE profiles
SET postpaid_enabled = $2, postpaid_credit_limit = $3, postpaid_used = $4,
    postpaid_due_cycle_days = $5, allow_payout_with_dues = $6, updated_at = $7
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q, userID, a.Enabled, a.CreditLimit, a.Used, a.DueCycleDays, a.AllowPayoutWithDues, at)
	return expectOne(res, err, apperr.ErrProfileNotFound)
}

func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (t *tx) InsertWalletTransaction(ctx context.Context, w domain.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (id, user_id, amount, type, description, reference_id, balance_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := t.q.ExecContext(ctx, q, w.ID, w.UserID, w.Amount, w.Type, w.Description, nullIfEmpty(w.ReferenceID), w.BalanceAfter, w.CreatedAt)
	return err
}

func (t *tx) InsertPostpaidTransaction(ctx context.Context, p domain.PostpaidTransaction) error {
	const q = `
INSERT INTO postpaid_transactions (
  id, user_id, order_id, amount, type, balance_before, balance_after, status, admin_id, admin_reason, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := t.q.ExecContext(ctx, q,
		p.ID,
		p.UserID,
		nullIfEmpty(p.OrderID),
		p.Amount,
		string(p.Type),
		p.BalanceBefore,
		p.BalanceAfter,
		string(p.Status),
		nullIfEmpty(p.AdminID),
		nullIfEmpty(p.AdminReason),
		p.CreatedAt,
	)
	return err
}

func (t *tx) InsertOrder(ctx context.Context, o domain.Order) error {
	const q = `
INSERT INTO orders (
  id, user_id, order_number, status, base_price, selling_price, quantity,
  payment_proof_url, paid_at, completed_at, postpaid_paid_at, wallet_credited, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`
	_, err := t.q.ExecContext(ctx, q,
		o.ID,
		o.UserID,
		o.OrderNumber,
		string(o.Status),
		o.BasePrice,
		o.SellingPrice,
		o.Quantity,
		nullIfEmpty(o.PaymentProofURL),
		o.PaidAt,
		o.CompletedAt,
		o.PostpaidPaidAt,
		o.WalletCredited,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return apperr.Conflict("order_exists", "order already exists")
	}
	return err
}

func (t *tx) LockOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, err
}

func (t *tx) LockOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders
WHERE user_id = $1 AND status = $2
ORDER BY created_at, id
FOR UPDATE`
	return queryOrders(ctx, t.q, q, userID, string(status))
}

func (t *tx) UpdateOrder(ctx context.Context, o domain.Order) error {
	const q = `
UPDATE orders
SET status = $2, payment_proof_url = $3, paid_at = $4, completed_at = $5, postpaid_paid_at = $6,
    wallet_credited = $7, updated_at = $8
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q,
		o.ID,
		string(o.Status),
		nullIfEmpty(o.PaymentProofURL),
		o.PaidAt,
		o.CompletedAt,
		o.PostpaidPaidAt,
		o.WalletCredited,
		o.UpdatedAt,
	)
	return expectOne(res, err, apperr.ErrOrderNotFound)
}

func (t *tx) InsertPayout(ctx context.Context, p domain.PayoutRequest) error {
	details, err := json.Marshal(detailsOrEmpty(p.Details))
	if err != nil {
		return err
	}
	const q = `
INSERT INTO payout_requests (
  id, user_id, amount, method, details, status, admin_notes, cancel_reason, processed_at, processed_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err = t.q.ExecContext(ctx, q,
		p.ID,
		p.UserID,
		p.Amount,
		p.Method,
		details,
		string(p.Status),
		nullIfEmpty(p.AdminNotes),
		nullIfEmpty(p.CancelReason),
		p.ProcessedAt,
		nullIfEmpty(p.ProcessedBy),
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

func detailsOrEmpty(d map[string]string) map[string]string {
	if d == nil {
		return map[string]string{}
	}
	return d
}

func (t *tx) LockPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error) {
	p, err := scanPayout(t.q.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 FOR UPDATE`, payoutID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PayoutRequest{}, apperr.ErrPayoutNotFound
	}
	return p, err
}

func (t *tx) UpdatePayout(ctx context.Context, p domain.PayoutRequest) error {
	const q = `
UPDATE payout_requests
SET status = $2, admin_notes = $3, cancel_reason = $4, processed_at = $5, processed_by = $6, updated_at = $7
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q,
		p.ID,
		string(p.Status),
		nullIfEmpty(p.AdminNotes),
		nullIfEmpty(p.CancelReason),
		p.ProcessedAt,
		nullIfEmpty(p.ProcessedBy),
		p.UpdatedAt,
	)
	return expectOne(res, err, apperr.ErrPayoutNotFound)
}

func (t *tx) SumPendingPayouts(ctx context.Context, userID, excludeID string) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(amount), 0) FROM payout_requests
WHERE user_id = $1 AND status = 'pending' AND ($2::text = '' OR id <> $2)
`
	var sum decimal.Decimal
	err := t.q.QueryRowContext(ctx, q, userID, excludeID).Scan(&sum)
	return sum, err
}

func (t *tx) LockChatSession(ctx context.Context, userID string) (domain.ChatSession, error) {
	cs, err := scanSession(t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = $1 FOR UPDATE`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatSession{}, apperr.ErrSessionNotFound
	}
	return cs, err
}

func (t *tx) InsertChatSessionIfAbsent(ctx context.Context, cs domain.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (user_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id) DO NOTHING
`
	_, err := t.q.ExecContext(ctx, q, cs.UserID, string(cs.Status), cs.CreatedAt, cs.UpdatedAt)
	return err
}

func (t *tx) UpsertChatSession(ctx context.Context, cs domain.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (
  user_id, status, assigned_agent_id, previous_agent_id, close_reason, user_messages_cleared_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id) DO UPDATE SET
  status = EXCLUDED.status,
  assigned_agent_id = EXCLUDED.assigned_agent_id,
  previous_agent_id = EXCLUDED.previous_agent_id,
  close_reason = EXCLUDED.close_reason,
  user_messages_cleared_at = EXCLUDED.user_messages_cleared_at,
  updated_at = EXCLUDED.updated_at
`
	_, err := t.q.ExecContext(ctx, q,
		cs.UserID,
		string(cs.Status),
		nullIfEmpty(cs.AssignedAgentID),
		nullIfEmpty(cs.PreviousAgentID),
		nullIfEmpty(cs.CloseReason),
		cs.UserMessagesClearedAt,
		cs.CreatedAt,
		cs.UpdatedAt,
	)
	return err
}

func (t *tx) InsertChatMessage(ctx context.Context, m domain.ChatMessage) error {
	const q = `
INSERT INTO chat_messages (id, user_id, sender_role, sender_id, message, is_read, read_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := t.q.ExecContext(ctx, q, m.ID, m.UserID, string(m.SenderRole), nullIfEmpty(m.SenderID), m.Message, m.IsRead, m.ReadAt, m.CreatedAt)
	return err
}

func (t *tx) CountMessagesFrom(ctx context.Context, userID string, role domain.SenderRole, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT count(*) FROM chat_messages WHERE user_id = $1 AND sender_role = $2 AND created_at >= $3`,
		userID, string(role), since).Scan(&n)
	return n, err
}

func (t *tx) MarkRead(ctx context.Context, userID string, roles []domain.SenderRole, at time.Time) (int, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE chat_messages SET is_read = TRUE, read_at = $3
WHERE user_id = $1 AND NOT is_read AND sender_role = ANY($2)`, userID, rolesArg(roles), at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *tx) AdjustAgentChats(ctx context.Context, agentID string, delta int) (int, error) {
	if agentID == "" {
		return 0, apperr.ErrInvalidArgument
	}
	const q = `
INSERT INTO support_agents (agent_id, active_chats, updated_at)
VALUES ($1, GREATEST($2, 0), now())
ON CONFLICT (agent_id) DO UPDATE SET
  active_chats = GREATEST(support_agents.active_chats + $2, 0),
  updated_at = now()
RETURNING active_chats
`
	var n int
	err := t.q.QueryRowContext(ctx, q, agentID, delta).Scan(&n)
	return n, err
}
