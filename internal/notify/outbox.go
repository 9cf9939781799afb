// Package notify is the best-effort notification outbox.
//
// Services enqueue intents and move on; a Worker delivers them with bounded
// retries. Nothing here ever fails the action that produced the intent.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
)

// Notifier is what services depend on; *Outbox implements it.
type Notifier interface {
	Enqueue(ctx context.Context, in Intent)
}

// Discard drops every intent.
type Discard struct{}

func (Discard) Enqueue(context.Context, Intent) {}

type Outbox struct {
	q     Queue
	clock func() time.Time
}

func NewOutbox(q Queue) *Outbox {
	return &Outbox{q: q, clock: time.Now}
}

func (o *Outbox) Enqueue(ctx context.Context, in Intent) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = o.clock().UTC()
	}
	if in.Audience == "" {
		in.Audience = AudienceUser
	}
	if err := o.q.Push(ctx, in); err != nil {
		logger.From(ctx).Warn("notification enqueue failed",
			slog.String("type", in.Type),
			slog.String("channel", string(in.Channel)),
			slog.Any("err", err),
		)
	}
}

// EnqueueBoth queues in-app and email copies of the same notification.
func EnqueueBoth(ctx context.Context, n Notifier, in Intent) {
	inApp := in
	inApp.Channel = ChannelInApp
	n.Enqueue(ctx, inApp)

	email := in
	email.Channel = ChannelEmail
	email.ID = ""
	n.Enqueue(ctx, email)
}

// Recorder is a Notifier that keeps intents in memory, for tests.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

func (r *Recorder) Enqueue(ctx context.Context, in Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
}

func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}

// Count returns queued intents matching typ and channel.
func (r *Recorder) Count(typ string, ch Channel) int {
	n := 0
	for _, in := range r.Intents() {
		if in.Type == typ && in.Channel == ch {
			n++
		}
	}
	return n
}
