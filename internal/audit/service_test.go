package audit

import (
	"context"
	"testing"
	"time"

	"dropship-platform/internal/auth"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{SubjectUserID: "u"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_RecordCapturesIPAndMetadata(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := WithClientIP(context.Background(), "1.2.3.4")
	svc.Record(ctx, Event{Type: EventPayoutRequested, SubjectUserID: "u1", EntityID: "p1"}, map[string]string{"amount": "50"})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured, got %q", evs[0].IPAddress)
	}
	if evs[0].Metadata != `{"amount":"50"}` {
		t.Fatalf("unexpected metadata %q", evs[0].Metadata)
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_RecordSwallowsFailures(t *testing.T) {
	var svc *Service
	svc.Record(context.Background(), Event{Type: EventChatAssignment}, nil)

	NewService(nil).Record(context.Background(), Event{Type: EventChatAssignment}, nil)
}

func TestMemoryRepo_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	for _, id := range []string{"a", "b", "c"} {
		_ = svc.Append(context.Background(), Event{Type: EventPostpaidAdjusted, SubjectUserID: "u", EntityID: id})
	}
	_ = svc.Append(context.Background(), Event{Type: EventPostpaidAdjusted, SubjectUserID: "other"})

	got, _ := svc.List(context.Background(), Filter{SubjectUserID: "u", Limit: 2})
	if len(got) != 2 || got[0].EntityID != "c" || got[1].EntityID != "b" {
		t.Fatalf("unexpected listing %+v", got)
	}
}

func TestService_AppendFillsActorFromIdentity(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := auth.WithIdentity(context.Background(), "admin-1", "admin")
	_ = svc.Append(ctx, Event{Type: EventWalletAdjusted, SubjectUserID: "u"})
	_ = svc.Append(ctx, Event{Type: EventWalletAdjusted, ActorUserID: "system"})

	evs := repo.Events()
	if evs[0].ActorUserID != "admin-1" || evs[0].ActorRole != "admin" {
		t.Fatalf("expected actor from identity, got %+v", evs[0])
	}
	if evs[1].ActorUserID != "system" {
		t.Fatalf("explicit actor overwritten: %+v", evs[1])
	}
}

func TestFilter_MatchesEntityAndSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Event{Type: EventSettingsChanged, EntityType: "platform_setting", EntityID: "payout", CreatedAt: now}

	if !(Filter{EntityType: "platform_setting", EntityID: "payout"}).matches(e) {
		t.Fatalf("expected entity match")
	}
	if (Filter{EntityID: "chat"}).matches(e) {
		t.Fatalf("expected entity mismatch")
	}
	if (Filter{Since: now.Add(time.Minute)}).matches(e) {
		t.Fatalf("expected event before since to be excluded")
	}
}
