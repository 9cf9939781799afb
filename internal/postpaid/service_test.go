package postpaid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/functions"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/store/memstore"

	"github.com/shopspring/decimal"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type stubInvoker struct {
	calls []string
	reply string
	err   error
}

func (s *stubInvoker) Invoke(ctx context.Context, name string, body any, out any) error {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return s.err
	}
	if out == nil || s.reply == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.reply), out)
}

type fixture struct {
	svc    *Service
	st     *memstore.Store
	fn     *stubInvoker
	audits *audit.MemoryRepo
	events *realtime.Recorder
}

// newFixture seeds u1 with the given wallet and dues, plus one postpaid
// order per total, oldest first.
func newFixture(t *testing.T, wallet, used int64, totals ...int64) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutProfile(domain.Profile{
		UserID:        "u1",
		WalletBalance: dec(wallet),
		Postpaid:      domain.PostpaidAccount{Enabled: true, CreditLimit: dec(500), Used: dec(used)},
	})
	base := time.Unix(1000, 0)
	for i, total := range totals {
		st.PutOrder(domain.Order{
			ID:           fmt.Sprintf("o%d", i+1),
			UserID:       "u1",
			OrderNumber:  fmt.Sprintf("ORD-%d", i+1),
			Status:       domain.OrderPostpaidPending,
			BasePrice:    dec(total),
			SellingPrice: dec(total),
			Quantity:     1,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}

	fn := &stubInvoker{}
	audits := audit.NewMemoryRepo()
	ev := &realtime.Recorder{}
	svc := NewService(st, fn, &notify.Recorder{}, ev, audit.NewService(audits))
	svc.clock = func() time.Time { return time.Unix(5000, 0) }
	return &fixture{svc: svc, st: st, fn: fn, audits: audits, events: ev}
}

func (f *fixture) profile(t *testing.T) domain.Profile {
	t.Helper()
	p, err := f.st.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return p
}

func (f *fixture) orderStatus(t *testing.T, id string) domain.OrderStatus {
	t.Helper()
	o, err := f.st.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("order %s: %v", id, err)
	}
	return o.Status
}

func TestRepay_ClearsOldestOrdersThatFit(t *testing.T) {
	f := newFixture(t, 200, 100, 30, 20, 50)

	res, err := f.svc.Repay(context.Background(), "u1", dec(50))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if len(res.ClearedOrders) != 2 || res.ClearedOrders[0].ID != "o1" || res.ClearedOrders[1].ID != "o2" {
		t.Fatalf("expected o1 and o2 cleared, got %+v", res.ClearedOrders)
	}
	if !res.NewPostpaidUsed.Equal(dec(50)) || !res.NewWalletBalance.Equal(dec(150)) {
		t.Fatalf("unexpected balances: used=%s wallet=%s", res.NewPostpaidUsed, res.NewWalletBalance)
	}
	if got := f.orderStatus(t, "o3"); got != domain.OrderPostpaidPending {
		t.Fatalf("expected o3 untouched, got %s", got)
	}
	o1, _ := f.st.GetOrder(context.Background(), "o1")
	if o1.Status != domain.OrderPaidByUser || o1.PostpaidPaidAt == nil {
		t.Fatalf("expected o1 paid with postpaidPaidAt, got %+v", o1)
	}

	txs, _ := f.st.ListPostpaidTransactions(context.Background(), "u1")
	if len(txs) != 1 || txs[0].Type != domain.PostpaidTxCreditRepaid || !txs[0].BalanceBefore.Equal(dec(100)) {
		t.Fatalf("unexpected postpaid ledger: %+v", txs)
	}
	wtx, _ := f.st.ListWalletTransactions(context.Background(), "u1", time.Time{}, time.Time{})
	if len(wtx) != 1 || !wtx[0].Amount.Equal(dec(-50)) {
		t.Fatalf("unexpected wallet ledger: %+v", wtx)
	}
}

func TestRepay_PartialAmountClearsNothing(t *testing.T) {
	f := newFixture(t, 200, 100, 30, 20, 50)

	res, err := f.svc.Repay(context.Background(), "u1", dec(25))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if len(res.ClearedOrders) != 0 {
		t.Fatalf("expected no cleared orders, got %d", len(res.ClearedOrders))
	}
	p := f.profile(t)
	if !p.Postpaid.Used.Equal(dec(75)) || !p.WalletBalance.Equal(dec(175)) {
		t.Fatalf("expected used 75 wallet 175, got %s %s", p.Postpaid.Used, p.WalletBalance)
	}
	for _, id := range []string{"o1", "o2", "o3"} {
		if got := f.orderStatus(t, id); got != domain.OrderPostpaidPending {
			t.Fatalf("expected %s still pending, got %s", id, got)
		}
	}
}

func TestRepay_RejectsWithoutMutation(t *testing.T) {
	cases := []struct {
		name   string
		wallet int64
		used   int64
		amount int64
		want   error
	}{
		{"above wallet", 40, 100, 50, apperr.ErrInsufficientBalance},
		{"above dues", 200, 30, 50, apperr.ErrExceedsDues},
		{"zero", 200, 100, 0, apperr.ErrInvalidAmount},
		{"negative", 200, 100, -5, apperr.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.wallet, tc.used, 30)
			_, err := f.svc.Repay(context.Background(), "u1", dec(tc.amount))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			p := f.profile(t)
			if !p.WalletBalance.Equal(dec(tc.wallet)) || !p.Postpaid.Used.Equal(dec(tc.used)) {
				t.Fatalf("expected no mutation, got wallet=%s used=%s", p.WalletBalance, p.Postpaid.Used)
			}
			if got := f.orderStatus(t, "o1"); got != domain.OrderPostpaidPending {
				t.Fatalf("expected order untouched, got %s", got)
			}
			txs, _ := f.st.ListPostpaidTransactions(context.Background(), "u1")
			if len(txs) != 0 {
				t.Fatalf("expected no ledger entries")
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, 0, 0)
	st, err := f.svc.GetStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.CanRequestPayout || st.HasOutstandingDues || !st.AvailableCredit.Equal(dec(500)) {
		t.Fatalf("unexpected status: %+v", st)
	}

	f = newFixture(t, 0, 40)
	st, _ = f.svc.GetStatus(context.Background(), "u1")
	if st.CanRequestPayout || !st.HasOutstandingDues || !st.OutstandingDues.Equal(dec(40)) {
		t.Fatalf("unexpected status with dues: %+v", st)
	}
}

func TestAdjustBalance_FloorsAtZeroAndLeavesWallet(t *testing.T) {
	f := newFixture(t, 70, 40)

	tx, err := f.svc.AdjustBalance(context.Background(), "admin-1", "u1", dec(-100), "goodwill")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !tx.BalanceBefore.Equal(dec(40)) || !tx.BalanceAfter.IsZero() || tx.Type != domain.PostpaidTxAdjustment {
		t.Fatalf("unexpected adjustment: %+v", tx)
	}
	p := f.profile(t)
	if !p.Postpaid.Used.IsZero() || !p.WalletBalance.Equal(dec(70)) {
		t.Fatalf("unexpected profile: used=%s wallet=%s", p.Postpaid.Used, p.WalletBalance)
	}

	events := f.audits.Events()
	if len(events) != 1 || events[0].Type != audit.EventPostpaidAdjusted || events[0].ActorUserID != "admin-1" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
}

func TestSetCreditLimit_BelowUsedClampsAvailable(t *testing.T) {
	f := newFixture(t, 0, 100)

	st, err := f.svc.SetCreditLimit(context.Background(), "admin-1", "u1", dec(60))
	if err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if !st.AvailableCredit.IsZero() || !st.CreditLimit.Equal(dec(60)) {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSetEnabled_LimitStillEnables(t *testing.T) {
	f := newFixture(t, 0, 0)

	st, err := f.svc.SetEnabled(context.Background(), "admin-1", "u1", false)
	if err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if !st.Enabled {
		t.Fatalf("expected a positive credit limit to keep the line enabled")
	}
	st, _ = f.svc.SetCreditLimit(context.Background(), "admin-1", "u1", decimal.Zero)
	if st.Enabled {
		t.Fatalf("expected disabled with zero limit and toggle off")
	}
}

func TestSetDueCycleAndAllowPayout(t *testing.T) {
	f := newFixture(t, 0, 0)
	days := 15
	st, err := f.svc.SetDueCycle(context.Background(), "admin-1", "u1", &days)
	if err != nil || st.DueCycleDays == nil || *st.DueCycleDays != 15 {
		t.Fatalf("unexpected due cycle: %+v %v", st, err)
	}
	zero := 0
	if _, err := f.svc.SetDueCycle(context.Background(), "admin-1", "u1", &zero); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	st, _ = f.svc.SetAllowPayoutWithDues(context.Background(), "admin-1", "u1", true)
	if !st.AllowPayoutWithDues {
		t.Fatalf("expected allow payout with dues")
	}
}

func TestChargeOrder(t *testing.T) {
	f := newFixture(t, 0, 480)
	f.st.PutOrder(domain.Order{ID: "n1", UserID: "u1", Status: domain.OrderPendingPayment, BasePrice: dec(10), Quantity: 2})
	f.st.PutOrder(domain.Order{ID: "n2", UserID: "u1", Status: domain.OrderPendingPayment, BasePrice: dec(1), Quantity: 1})

	o, st, err := f.svc.ChargeOrder(context.Background(), "u1", "n1")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if o.Status != domain.OrderPostpaidPending || !st.UsedCredit.Equal(dec(500)) || !st.AvailableCredit.IsZero() {
		t.Fatalf("unexpected result: %s %+v", o.Status, st)
	}

	if _, _, err := f.svc.ChargeOrder(context.Background(), "u1", "n2"); !errors.Is(err, apperr.ErrCreditLimitExceeded) {
		t.Fatalf("expected credit limit exceeded, got %v", err)
	}
	if _, _, err := f.svc.ChargeOrder(context.Background(), "u1", "n1"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second charge, got %v", err)
	}
}

func TestChargeOrder_RequiresEnabledLine(t *testing.T) {
	st := memstore.New()
	st.PutProfile(domain.Profile{UserID: "u1"})
	st.PutOrder(domain.Order{ID: "n1", UserID: "u1", Status: domain.OrderPendingPayment, BasePrice: dec(1), Quantity: 1})
	svc := NewService(st, nil, nil, nil, nil)

	if _, _, err := svc.ChargeOrder(context.Background(), "u1", "n1"); !errors.Is(err, apperr.ErrPostpaidDisabled) {
		t.Fatalf("expected postpaid disabled, got %v", err)
	}
}

func TestSendDueReminders(t *testing.T) {
	f := newFixture(t, 0, 10)
	f.fn.reply = `{"success":true,"emailsSent":2,"notificationsSent":3}`

	res, err := f.svc.SendDueReminders(context.Background())
	if err != nil {
		t.Fatalf("reminders: %v", err)
	}
	if !res.Success || res.EmailsSent != 2 || res.NotificationsSent != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.fn.calls) != 1 || f.fn.calls[0] != functions.SendPostpaidDueReminder {
		t.Fatalf("unexpected calls: %v", f.fn.calls)
	}

	f.fn.err = apperr.Remote("send-postpaid-due-reminder", errors.New("boom"))
	if _, err := f.svc.SendDueReminders(context.Background()); apperr.KindOf(err) != apperr.KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestChargedOrderCancelledReleasesDues(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.st.PutOrder(domain.Order{ID: "n1", UserID: "u1", OrderNumber: "ORD-N1", Status: domain.OrderPendingPayment, BasePrice: dec(20), SellingPrice: dec(25), Quantity: 2})
	ctx := context.Background()

	if _, _, err := f.svc.ChargeOrder(ctx, "u1", "n1"); err != nil {
		t.Fatalf("charge: %v", err)
	}
	svc := orders.NewService(f.st, nil, nil, nil)
	if _, err := svc.UpdateStatus(ctx, "admin-1", "n1", domain.OrderCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	st, err := f.svc.GetStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.UsedCredit.IsZero() || !st.CanRequestPayout || st.HasOutstandingDues {
		t.Fatalf("expected dues released, got %+v", st)
	}

	txs, _ := f.st.ListPostpaidTransactions(ctx, "u1")
	var released *domain.PostpaidTransaction
	for i := range txs {
		if txs[i].Type == domain.PostpaidTxAdjustment {
			released = &txs[i]
		}
	}
	if released == nil || !released.Amount.Equal(dec(40)) || released.OrderID != "n1" || !released.BalanceAfter.IsZero() {
		t.Fatalf("expected a 40 adjustment for n1, got %+v", txs)
	}
}

func TestRepaidOrderKeepsDuesUntouchedOnLaterChange(t *testing.T) {
	// 50 of the dues are not tied to any order.
	f := newFixture(t, 100, 80, 30)
	ctx := context.Background()

	if _, err := f.svc.Repay(ctx, "u1", dec(30)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	svc := orders.NewService(f.st, nil, nil, nil)
	if _, err := svc.UpdateStatus(ctx, "admin-1", "o1", domain.OrderCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if p := f.profile(t); !p.Postpaid.Used.Equal(dec(50)) {
		t.Fatalf("expected dues 50, got %s", p.Postpaid.Used)
	}
	txs, _ := f.st.ListPostpaidTransactions(ctx, "u1")
	for _, tx := range txs {
		if tx.Type == domain.PostpaidTxAdjustment {
			t.Fatalf("unexpected adjustment after repayment: %+v", tx)
		}
	}
}

func TestChargedOrderCompletedStaysOwed(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.st.PutOrder(domain.Order{ID: "n1", UserID: "u1", Status: domain.OrderPendingPayment, BasePrice: dec(20), SellingPrice: dec(25), Quantity: 1})
	ctx := context.Background()

	if _, _, err := f.svc.ChargeOrder(ctx, "u1", "n1"); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := orders.NewService(f.st, nil, nil, nil).UpdateStatus(ctx, "admin-1", "n1", domain.OrderCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	p := f.profile(t)
	if !p.Postpaid.Used.Equal(dec(20)) || !p.WalletBalance.Equal(dec(5)) {
		t.Fatalf("expected dues 20 and profit 5, got used %s wallet %s", p.Postpaid.Used, p.WalletBalance)
	}
}

func TestSendDueReminders_WithoutFunctionsIsRemote(t *testing.T) {
	svc := NewService(memstore.New(), nil, nil, nil, nil)
	if _, err := svc.SendDueReminders(context.Background()); apperr.KindOf(err) != apperr.KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestRunDueReminderJob_BlocksAndSkipsWithoutDues(t *testing.T) {
	f := newFixture(t, 0, 10)
	f.fn.reply = `{"success":true}`

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	f.svc.RunDueReminderJob(ctx, 10*time.Millisecond, slog.Default())
	if len(f.fn.calls) == 0 {
		t.Fatalf("expected reminders sent while dues are outstanding")
	}

	idle := newFixture(t, 0, 0)
	ctx, cancel = context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	idle.svc.RunDueReminderJob(ctx, 10*time.Millisecond, slog.Default())
	if len(idle.fn.calls) != 0 {
		t.Fatalf("expected no reminder calls without dues, got %v", idle.fn.calls)
	}
}
