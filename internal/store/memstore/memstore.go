// Package memstore is an in-memory store.Store for tests and local runs.
//
// Every unit of work holds a single mutex and works on the live state; on
// error (or panic) the state is restored from a snapshot taken at the start,
// which gives the same all-or-nothing contract as the Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/store"

	"github.com/shopspring/decimal"
)

type state struct {
	profiles    map[string]domain.Profile
	walletTxs   []domain.WalletTransaction
	postpaidTxs []domain.PostpaidTransaction
	orders      map[string]domain.Order
	payouts     map[string]domain.PayoutRequest
	sessions    map[string]domain.ChatSession
	messages    []domain.ChatMessage
	agents      map[string]int
}

func newState() *state {
	return &state{
		profiles: map[string]domain.Profile{},
		orders:   map[string]domain.Order{},
		payouts:  map[string]domain.PayoutRequest{},
		sessions: map[string]domain.ChatSession{},
		agents:   map[string]int{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.payouts {
		v.Details = copyDetails(v.Details)
		out.payouts[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.agents {
		out.agents[k] = v
	}
	out.walletTxs = append([]domain.WalletTransaction(nil), s.walletTxs...)
	out.postpaidTxs = append([]domain.PostpaidTransaction(nil), s.postpaidTxs...)
	out.messages = append([]domain.ChatMessage(nil), s.messages...)
	return out
}

func copyDetails(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState()} }

func (m *Store) WithTx(ctx context.Context, fn store.TxFunc) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	defer func() {
		if p := recover(); p != nil {
			m.st = snapshot
			panic(p)
		}
		if err != nil {
			m.st = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{st: m.st})
}

// PutProfile stores p as-is, replacing any existing profile.
func (m *Store) PutProfile(p domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.profiles[p.UserID] = p
}

// PutOrder stores o as-is, replacing any existing order.
func (m *Store) PutOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.orders[o.ID] = o
}

/* ===================== READS ===================== */

func (m *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.profiles[userID]
	if !ok {
		return domain.Profile{}, apperr.ErrProfileNotFound
	}
	return p, nil
}

func (m *Store) ListProfilesWithDues(ctx context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0)
	for _, p := range m.st.profiles {
		if p.Postpaid.HasDues() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Store) ListWalletTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.WalletTransaction, 0)
	for _, t := range m.st.walletTxs {
		if t.UserID != userID {
			continue
		}
		if !from.IsZero() && t.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CreatedAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Store) ListPostpaidTransactions(ctx context.Context, userID string) ([]domain.PostpaidTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PostpaidTransaction, 0)
	for _, t := range m.st.postpaidTxs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[orderID]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (m *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.orderList(f), nil
}

func (m *Store) GetPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.payouts[payoutID]
	if !ok {
		return domain.PayoutRequest{}, apperr.ErrPayoutNotFound
	}
	p.Details = copyDetails(p.Details)
	return p, nil
}

func (m *Store) ListPayouts(ctx context.Context, f store.PayoutFilter) ([]domain.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PayoutRequest, 0)
	for _, p := range m.st.payouts {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		p.Details = copyDetails(p.Details)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) GetChatSession(ctx context.Context, userID string) (domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.st.sessions[userID]
	if !ok {
		return domain.ChatSession{}, apperr.ErrSessionNotFound
	}
	return s, nil
}

func (m *Store) ListChatSessions(ctx context.Context, status domain.ChatStatus) ([]domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatSession, 0)
	for _, s := range m.st.sessions {
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Store) ListChatMessages(ctx context.Context, userID string, since time.Time) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatMessage, 0)
	for _, msg := range m.st.messages {
		if msg.UserID == userID && !msg.CreatedAt.Before(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Store) CountUnread(ctx context.Context, userID string, roles []domain.SenderRole, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.st.messages {
		if msg.UserID == userID && !msg.IsRead && hasRole(roles, msg.SenderRole) && !msg.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Store) AgentActiveChats(ctx context.Context, agentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.agents[agentID], nil
}

func hasRole(roles []domain.SenderRole, r domain.SenderRole) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func (s *state) orderList(f store.OrderFilter) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

/* ===================== UNIT OF WORK ===================== */

type tx struct {
	st *state
}

func (t *tx) InsertProfile(ctx context.Context, p domain.Profile) error {
	if _, ok := t.st.profiles[p.UserID]; ok {
		return apperr.Conflict("profile_exists", "profile already exists")
	}
	t.st.profiles[p.UserID] = p
	return nil
}

func (t *tx) LockProfile(ctx context.Context, userID string) (domain.Profile, error) {
	p, ok := t.st.profiles[userID]
	if !ok {
		return domain.Profile{}, apperr.ErrProfileNotFound
	}
	return p, nil
}

func (t *tx) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	p, ok := t.st.profiles[userID]
	if !ok {
		return apperr.ErrProfileNotFound
	}
	p.WalletBalance = balance
	p.UpdatedAt = at
	t.st.profiles[userID] = p
	return nil
}

func (t *tx) UpdatePostpaid(ctx context.Context, userID string, acct domain.PostpaidAccount, at time.Time) error {
	p, ok := t.st.profiles[userID]
	if !ok {
		return apperr.ErrProfileNotFound
	}
	p.Postpaid = acct
	p.UpdatedAt = at
	t.st.profiles[userID] = p
	return nil
}

func (t *tx) InsertWalletTransaction(ctx context.Context, w domain.WalletTransaction) error {
	t.st.walletTxs = append(t.st.walletTxs, w)
	return nil
}

func (t *tx) InsertPostpaidTransaction(ctx context.Context, p domain.PostpaidTransaction) error {
	t.st.postpaidTxs = append(t.st.postpaidTxs, p)
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o domain.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return apperr.Conflict("order_exists", "order already exists")
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) LockOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (t *tx) LockOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error) {
	return t.st.orderList(store.OrderFilter{UserID: userID, Status: status}), nil
}

func (t *tx) UpdateOrder(ctx context.Context, o domain.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return apperr.ErrOrderNotFound
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) InsertPayout(ctx context.Context, p domain.PayoutRequest) error {
	p.Details = copyDetails(p.Details)
	t.st.payouts[p.ID] = p
	return nil
}

func (t *tx) LockPayout(ctx context.Context, payoutID string) (domain.PayoutRequest, error) {
	p, ok := t.st.payouts[payoutID]
	if !ok {
		return domain.PayoutRequest{}, apperr.ErrPayoutNotFound
	}
	p.Details = copyDetails(p.Details)
	return p, nil
}

func (t *tx) UpdatePayout(ctx context.Context, p domain.PayoutRequest) error {
	if _, ok := t.st.payouts[p.ID]; !ok {
		return apperr.ErrPayoutNotFound
	}
	p.Details = copyDetails(p.Details)
	t.st.payouts[p.ID] = p
	return nil
}

func (t *tx) SumPendingPayouts(ctx context.Context, userID, excludeID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range t.st.payouts {
		if p.UserID == userID && p.Status == domain.PayoutPending && p.ID != excludeID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (t *tx) LockChatSession(ctx context.Context, userID string) (domain.ChatSession, error) {
	s, ok := t.st.sessions[userID]
	if !ok {
		return domain.ChatSession{}, apperr.ErrSessionNotFound
	}
	return s, nil
}

func (t *tx) InsertChatSessionIfAbsent(ctx context.Context, s domain.ChatSession) error {
	if _, ok := t.st.sessions[s.UserID]; !ok {
		t.st.sessions[s.UserID] = s
	}
	return nil
}

func (t *tx) UpsertChatSession(ctx context.Context, s domain.ChatSession) error {
	t.st.sessions[s.UserID] = s
	return nil
}

func (t *tx) InsertChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	t.st.messages = append(t.st.messages, msg)
	return nil
}

func (t *tx) CountMessagesFrom(ctx context.Context, userID string, role domain.SenderRole, since time.Time) (int, error) {
	n := 0
	for _, msg := range t.st.messages {
		if msg.UserID == userID && msg.SenderRole == role && !msg.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *tx) MarkRead(ctx context.Context, userID string, roles []domain.SenderRole, at time.Time) (int, error) {
	n := 0
	for i, msg := range t.st.messages {
		if msg.UserID != userID || msg.IsRead || !hasRole(roles, msg.SenderRole) {
			continue
		}
		readAt := at
		msg.IsRead = true
		msg.ReadAt = &readAt
		t.st.messages[i] = msg
		n++
	}
	return n, nil
}

func (t *tx) AdjustAgentChats(ctx context.Context, agentID string, delta int) (int, error) {
	if agentID == "" {
		return 0, apperr.ErrInvalidArgument
	}
	next := t.st.agents[agentID] + delta
	if next < 0 {
		next = 0
	}
	t.st.agents[agentID] = next
	return next, nil
}
