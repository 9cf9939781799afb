package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bridge fans events out across API instances over Redis pub/sub. Publishing
// goes to Redis only; every instance (this one included) delivers what it
// receives from the subscription to its local hub.
type Bridge struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *slog.Logger
}

func NewBridge(rdb *redis.Client, channel string, hub *Hub, log *slog.Logger) *Bridge {
	if channel == "" {
		channel = "realtime:events"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{rdb: rdb, channel: channel, hub: hub, log: log}
}

func (b *Bridge) Publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err == nil {
		err = b.rdb.Publish(ctx, b.channel, raw).Err()
	}
	if err != nil {
		b.log.Warn("realtime bridge publish failed, delivering locally", slog.String("type", ev.Type), slog.Any("err", err))
		b.hub.Publish(ctx, ev)
	}
}

// Run relays subscribed events into the local hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("realtime bridge decode failed", slog.Any("err", err))
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}
