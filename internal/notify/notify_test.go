package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type flakySender struct {
	failures int
	calls    int
}

func (s *flakySender) Send(ctx context.Context, in Intent) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("temporary")
	}
	return nil
}

type fnInvoker struct {
	name string
	body any
	err  error
}

func (f *fnInvoker) Invoke(ctx context.Context, name string, body any, out any) error {
	f.name, f.body = name, body
	return f.err
}

func newTestWorker(senders map[Channel]Sender, attempts int) (*Worker, *[]time.Duration) {
	var waits []time.Duration
	w := NewWorker(NewMemoryQueue(8), senders, WorkerConfig{MaxAttempts: attempts, Backoff: 100 * time.Millisecond},
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	w.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return w, &waits
}

func TestWorker_RetriesWithExponentialBackoff(t *testing.T) {
	s := &flakySender{failures: 2}
	w, waits := newTestWorker(map[Channel]Sender{ChannelEmail: s}, 5)

	if !w.Deliver(context.Background(), Intent{Channel: ChannelEmail, Type: "x"}) {
		t.Fatalf("expected delivery after retries")
	}
	if s.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", s.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 100*time.Millisecond || (*waits)[1] != 200*time.Millisecond {
		t.Fatalf("unexpected backoff %v", *waits)
	}
}

func TestWorker_DropsAfterMaxAttempts(t *testing.T) {
	s := &flakySender{failures: 10}
	w, _ := newTestWorker(map[Channel]Sender{ChannelInApp: s}, 3)
	if w.Deliver(context.Background(), Intent{Channel: ChannelInApp}) {
		t.Fatalf("expected drop")
	}
	if s.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", s.calls)
	}
}

func TestWorker_PermanentFailureStopsRetrying(t *testing.T) {
	fn := &fnInvoker{}
	w, _ := newTestWorker(map[Channel]Sender{ChannelEmail: NewEmailSender(fn, "")}, 5)
	if w.Deliver(context.Background(), Intent{Channel: ChannelEmail, Audience: AudienceUser, Type: "x"}) {
		t.Fatalf("expected drop without recipient")
	}
	if fn.name != "" {
		t.Fatalf("function must not be invoked without recipient")
	}
}

func TestWorker_RunDrainsQueue(t *testing.T) {
	repo := NewMemoryRepo()
	q := NewMemoryQueue(4)
	w := NewWorker(q, map[Channel]Sender{ChannelInApp: NewInAppSender(repo)}, WorkerConfig{}, nil)

	out := NewOutbox(q)
	out.Enqueue(context.Background(), Intent{Channel: ChannelInApp, UserID: "u1", Type: "payout_approved", Title: "Payout approved"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rows, _ := repo.List(context.Background(), "u1", 0); len(rows) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	rows, _ := repo.List(context.Background(), "u1", 0)
	if len(rows) != 1 || rows[0].Title != "Payout approved" {
		t.Fatalf("expected stored notification, got %+v", rows)
	}
}

func TestEmailSender_AdminFallbackAndBody(t *testing.T) {
	fn := &fnInvoker{}
	s := NewEmailSender(fn, "ops@example.com")
	err := s.Send(context.Background(), Intent{Audience: AudienceAdmin, Type: "new_payout_request", Data: map[string]any{"amount": "50"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	body := fn.body.(map[string]any)
	if body["recipientEmail"] != "ops@example.com" || body["type"] != "new_payout_request" || body["amount"] != "50" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestMemoryRepo_AdminAudienceSeparate(t *testing.T) {
	repo := NewMemoryRepo()
	_ = repo.Insert(context.Background(), Notification{ID: "1", Audience: AudienceAdmin})
	_ = repo.Insert(context.Background(), Notification{ID: "2", Audience: AudienceUser, UserID: "u"})

	admin, _ := repo.List(context.Background(), "", 0)
	user, _ := repo.List(context.Background(), "u", 0)
	if len(admin) != 1 || admin[0].ID != "1" || len(user) != 1 || user[0].ID != "2" {
		t.Fatalf("audiences mixed: admin=%+v user=%+v", admin, user)
	}
}

func TestMemoryQueue_FullIsReported(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Push(context.Background(), Intent{})
	if err := q.Push(context.Background(), Intent{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
}

func TestEnqueueBoth(t *testing.T) {
	r := &Recorder{}
	EnqueueBoth(context.Background(), r, Intent{Type: "order_status", UserID: "u"})
	if r.Count("order_status", ChannelInApp) != 1 || r.Count("order_status", ChannelEmail) != 1 {
		t.Fatalf("expected one intent per channel, got %+v", r.Intents())
	}
}
