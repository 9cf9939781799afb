// Package realtime pushes entity change events to connected portal and
// dashboard clients over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// PresenceSink receives connection signals for dropshipper clients.
type PresenceSink interface {
	Connected(userID string)
	Disconnected(userID string)
	Activity(userID string)
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan Event
	done       chan struct{}

	clients map[*Client]struct{}
	size    atomic.Int64
	// conns counts open connections per dropshipper for presence.
	conns map[string]int

	presence PresenceSink
	log      *slog.Logger
	clock    func() time.Time
}

func NewHub(presence PresenceSink, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		clients:    map[*Client]struct{}{},
		conns:      map[string]int{},
		presence:   presence,
		log:        log,
		clock:      time.Now,
	}
}

// Publish queues ev for local delivery. It drops the event when the hub is backed up.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = h.clock().UTC()
	}
	select {
	case h.events <- ev:
	default:
		h.log.Warn("realtime event dropped", slog.String("type", ev.Type), slog.String("user_id", ev.UserID))
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.removeClient(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if !c.staff {
				h.conns[c.userID]++
				if h.conns[c.userID] == 1 && h.presence != nil {
					h.presence.Connected(c.userID)
				}
			}
			h.size.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			h.removeClient(c)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("realtime encode failed", slog.String("type", ev.Type), slog.Any("err", err))
		return
	}
	for c := range h.clients {
		if !c.staff && c.userID != ev.UserID {
			continue
		}
		select {
		case c.send <- raw:
		default:
			// Slow consumer: drop the connection, the client reconnects and refetches.
			h.log.Debug("realtime client dropped", slog.String("user_id", c.userID))
			h.removeClient(c)
		}
	}
}

// removeClient closes c and settles presence. Calling it again for a
// client already removed is a no-op, so readPump's later unregister is safe.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.size.Store(int64(len(h.clients)))

	if c.staff {
		return
	}
	h.conns[c.userID]--
	if h.conns[c.userID] > 0 {
		return
	}
	delete(h.conns, c.userID)
	if h.presence != nil {
		h.presence.Disconnected(c.userID)
	}
}

// Clients reports the number of open connections.
func (h *Hub) Clients() int { return int(h.size.Load()) }
