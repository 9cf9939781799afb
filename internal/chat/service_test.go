package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/functions"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store"
	"dropship-platform/internal/store/memstore"
)

// ticker hands out strictly increasing times.
type ticker struct{ t time.Time }

func (c *ticker) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	svc     *Service
	st      *memstore.Store
	rec     *notify.Recorder
	aliases *MemoryAliases
	audits  *audit.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	rec := &notify.Recorder{}
	aliases := NewMemoryAliases()
	audits := audit.NewMemoryRepo()
	svc := NewService(st, Deps{
		Settings: settings.NewService(settings.NewMemoryRepo()),
		Aliases:  aliases,
		Notifier: rec,
		Events:   &realtime.Recorder{},
		Audit:    audit.NewService(audits),
	})
	clk := &ticker{t: time.Unix(10_000, 0)}
	svc.clock = clk.now
	return &fixture{svc: svc, st: st, rec: rec, aliases: aliases, audits: audits}
}

func (f *fixture) send(t *testing.T, text string) SendResult {
	t.Helper()
	res, err := f.svc.SendUserMessage(context.Background(), "u1", text)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return res
}

func TestSendUserMessage_FirstMessageGetsOneWelcome(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "hello, where is my order?")
	if res.Welcome == nil || res.Welcome.SenderRole != domain.SenderAdmin {
		t.Fatalf("expected admin welcome reply, got %+v", res.Welcome)
	}
	if res.Session.Status != domain.ChatWaitingForSupport || res.Session.AssignedAgentID != "" {
		t.Fatalf("unexpected session: %+v", res.Session)
	}
	if n := f.rec.Count("new_chat", notify.ChannelInApp); n != 1 {
		t.Fatalf("expected one admin notification, got %d", n)
	}

	res = f.send(t, "anyone?")
	if res.Welcome != nil {
		t.Fatalf("expected no second welcome")
	}
	if n := len(f.rec.Intents()); n != 1 {
		t.Fatalf("expected still one notification, got %d", n)
	}

	msgs, _ := f.svc.Messages(context.Background(), "u1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	welcomes := 0
	for _, m := range msgs {
		if m.SenderRole == domain.SenderAdmin {
			welcomes++
		}
	}
	if welcomes != 1 {
		t.Fatalf("expected exactly one welcome, got %d", welcomes)
	}
}

func TestSendUserMessage_RejectsEmpty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SendUserMessage(context.Background(), "u1", "   "); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEndChatThenStartNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "hi")

	if _, err := f.svc.Assign(ctx, "admin-1", "u1", "agent-7", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if n, _ := f.st.AgentActiveChats(ctx, "agent-7"); n != 1 {
		t.Fatalf("expected agent counter 1, got %d", n)
	}
	alias, _ := f.aliases.Alias(ctx, "u1")

	closed, err := f.svc.EndChat(ctx, "agent-7", "u1", "issue fixed")
	if err != nil {
		t.Fatalf("end chat: %v", err)
	}
	if closed.Status != domain.ChatClosed || closed.CloseReason != "issue fixed" {
		t.Fatalf("unexpected closed session: %+v", closed)
	}
	if closed.AssignedAgentID != "" || closed.PreviousAgentID != "agent-7" {
		t.Fatalf("expected agent moved to previous, got %+v", closed)
	}
	if n, _ := f.st.AgentActiveChats(ctx, "agent-7"); n != 0 {
		t.Fatalf("expected agent counter released, got %d", n)
	}
	if again, _ := f.aliases.Alias(ctx, "u1"); again == alias {
		t.Fatalf("expected alias mapping deleted on close")
	}
	if n := f.rec.Count("chat_closed", notify.ChannelInApp); n != 1 {
		t.Fatalf("expected close notification, got %d", n)
	}

	sess, err := f.svc.StartNewConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("start new: %v", err)
	}
	if sess.Status != domain.ChatActive || sess.AssignedAgentID != "" {
		t.Fatalf("unexpected session after restart: %+v", sess)
	}
	visible, _ := f.svc.Messages(ctx, "u1")
	if len(visible) != 0 {
		t.Fatalf("expected no visible messages, got %d", len(visible))
	}

	history, _ := f.svc.AdminMessages(ctx, "u1")
	if len(history) != 3 || history[2].SenderRole != domain.SenderSystem {
		t.Fatalf("expected full history with closing message, got %+v", history)
	}
}

func TestSendUserMessage_ReopensClosedChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "hi")
	if _, err := f.svc.EndChat(ctx, "agent-1", "u1", ""); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.svc.EndChat(ctx, "agent-1", "u1", ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected second close rejected, got %v", err)
	}

	res := f.send(t, "one more thing")
	if res.Session.Status != domain.ChatWaitingForSupport || res.Session.CloseReason != "" {
		t.Fatalf("expected reopened session, got %+v", res.Session)
	}
	if res.Welcome != nil {
		t.Fatalf("expected no welcome without a new conversation")
	}
}

func TestSendAdminMessage_ActivatesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendAdminMessage(ctx, "agent-1", "u1", "hello"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	f.send(t, "hi")
	res, err := f.svc.SendAdminMessage(ctx, "agent-1", "u1", "How can I help?")
	if err != nil {
		t.Fatalf("admin send: %v", err)
	}
	if res.Session.Status != domain.ChatActive || res.Session.AssignedAgentID != "" {
		t.Fatalf("expected active session without agent, got %+v", res.Session)
	}
	if n := f.rec.Count("chat_reply", notify.ChannelInApp); n != 1 {
		t.Fatalf("expected user notification, got %d", n)
	}
}

func TestUnreadAndMarkAsRead_CounterpartOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "one")
	f.send(t, "two")

	if n, _ := f.svc.UnreadCount(ctx, "u1", domain.SenderAdmin); n != 2 {
		t.Fatalf("expected 2 unread for support, got %d", n)
	}
	if n, _ := f.svc.UnreadCount(ctx, "u1", domain.SenderUser); n != 1 {
		t.Fatalf("expected 1 unread for user, got %d", n)
	}

	marked, err := f.svc.MarkAsRead(ctx, "u1", domain.SenderAdmin)
	if err != nil || marked != 2 {
		t.Fatalf("expected 2 marked, got %d %v", marked, err)
	}
	if n, _ := f.svc.UnreadCount(ctx, "u1", domain.SenderAdmin); n != 0 {
		t.Fatalf("expected support unread cleared, got %d", n)
	}
	if n, _ := f.svc.UnreadCount(ctx, "u1", domain.SenderUser); n != 1 {
		t.Fatalf("expected user unread untouched, got %d", n)
	}
}

func TestListSessions_Summaries(t *testing.T) {
	f := newFixture(t)
	f.svc.presence = NewPresence(PresenceConfig{}, nil)
	f.svc.presence.Connected("u1")
	f.send(t, "hi")

	list, err := f.svc.ListSessions(context.Background(), domain.ChatWaitingForSupport)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Unread != 1 || list[0].Presence != PresenceOnline || list[0].Alias == "" {
		t.Fatalf("unexpected summaries: %+v", list)
	}
	if _, err := f.svc.ListSessions(context.Background(), "archived"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAssign_ReassignsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "hi")

	if _, err := f.svc.Assign(ctx, "admin-1", "u1", "agent-a", ""); err != nil {
		t.Fatalf("assign a: %v", err)
	}
	sess, err := f.svc.Assign(ctx, "admin-1", "u1", "agent-b", "rebalancing")
	if err != nil {
		t.Fatalf("assign b: %v", err)
	}
	if sess.AssignedAgentID != "agent-b" || sess.PreviousAgentID != "agent-a" || sess.Status != domain.ChatActive {
		t.Fatalf("unexpected session: %+v", sess)
	}
	a, _ := f.st.AgentActiveChats(ctx, "agent-a")
	b, _ := f.st.AgentActiveChats(ctx, "agent-b")
	if a != 0 || b != 1 {
		t.Fatalf("unexpected counters a=%d b=%d", a, b)
	}

	sess, err = f.svc.Unassign(ctx, "admin-1", "u1", "")
	if err != nil || sess.AssignedAgentID != "" {
		t.Fatalf("unassign: %+v %v", sess, err)
	}
	if b, _ := f.st.AgentActiveChats(ctx, "agent-b"); b != 0 {
		t.Fatalf("expected agent-b released, got %d", b)
	}
	if n := len(f.audits.Events()); n != 3 {
		t.Fatalf("expected 3 assignment audits, got %d", n)
	}
}

type captureInvoker struct {
	name  string
	body  any
	reply string
}

func (c *captureInvoker) Invoke(ctx context.Context, name string, body any, out any) error {
	c.name, c.body = name, body
	if out == nil || c.reply == "" {
		return nil
	}
	return json.Unmarshal([]byte(c.reply), out)
}

func TestRemoteReassigner_SendsAssignment(t *testing.T) {
	inv := &captureInvoker{reply: `{"success":true}`}
	r := NewRemoteReassigner(inv)
	a := Assignment{Action: ActionManualAssign, UserID: "u1", TargetAgentID: "agent-1", AdminID: "admin-1", TriggerReason: "admin_manual"}

	if err := r.Reassign(context.Background(), a); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if inv.name != functions.ChatReassignment {
		t.Fatalf("unexpected function %q", inv.name)
	}
	if got, ok := inv.body.(Assignment); !ok || got != a {
		t.Fatalf("unexpected body: %#v", inv.body)
	}
}

func TestSendUserMessage_SessionRowCreatedBeforeWelcomeCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A first message committed by a racing request owns the new session row.
	err := f.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockOrCreate(ctx, tx, "u1", time.Unix(10_000, 0)); err != nil {
			return err
		}
		return tx.InsertChatMessage(ctx, newMessage("u1", domain.SenderUser, "u1", "first", time.Unix(10_000, 0)))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.st.GetChatSession(ctx, "u1"); err != nil {
		t.Fatalf("expected session row persisted by lockOrCreate, got %v", err)
	}

	if res := f.send(t, "second"); res.Welcome != nil {
		t.Fatalf("expected no welcome once the session has a user message")
	}
}

func TestRemoteReassigner_FailsWithoutSuccess(t *testing.T) {
	for _, reply := range []string{`{"success":false}`, `{"success":false,"error":"agent at capacity"}`, `{}`} {
		r := NewRemoteReassigner(&captureInvoker{reply: reply})
		err := r.Reassign(context.Background(), Assignment{Action: ActionManualAssign, UserID: "u1"})
		if apperr.KindOf(err) != apperr.KindConflict {
			t.Fatalf("reply %s: expected conflict, got %v", reply, err)
		}
	}
}
