package realtime

import (
	"context"
	"time"
)

// Event types pushed to clients. Each event carries the entity id and its
// latest snapshot so clients patch their cache instead of refetching.
const (
	EventWalletUpdated   = "wallet.updated"
	EventPostpaidUpdated = "postpaid.updated"
	EventOrderUpdated    = "order.updated"
	EventPayoutUpdated   = "payout.updated"
	EventChatMessage     = "chat.message"
	EventChatSession     = "chat.session"
	EventPresenceChanged = "presence.changed"
)

type Event struct {
	Type string `json:"type"`
	// UserID is the dropshipper the event belongs to. Staff clients receive every event.
	UserID   string    `json:"user_id"`
	EntityID string    `json:"entity_id,omitempty"`
	Data     any       `json:"data,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher is what services depend on. Publishing never blocks the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) { r.Events = append(r.Events, ev) }

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}
