package chat

import (
	"context"
	"sync"
	"time"
)

type PresenceState string

const (
	PresenceOnline       PresenceState = "online"
	PresenceIdle         PresenceState = "idle"
	PresenceReconnecting PresenceState = "reconnecting"
	PresenceOffline      PresenceState = "offline"
)

// PresenceConfig holds the policy timings. Zero values use 30s.
type PresenceConfig struct {
	InactivityTimeout time.Duration
	GracePeriod       time.Duration
}

type presenceEntry struct {
	conns          int
	state          PresenceState
	lastActivity   time.Time
	disconnectedAt time.Time
}

// Presence turns connect, disconnect and activity signals from the realtime
// hub into the customer state agents see. A dropped connection is shown as
// reconnecting until the grace period runs out.
type Presence struct {
	cfg      PresenceConfig
	clock    func() time.Time
	onChange func(userID string, st PresenceState)

	mu    sync.Mutex
	users map[string]*presenceEntry
}

func NewPresence(cfg PresenceConfig, onChange func(userID string, st PresenceState)) *Presence {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 30 * time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if onChange == nil {
		onChange = func(string, PresenceState) {}
	}
	return &Presence{cfg: cfg, clock: time.Now, onChange: onChange, users: map[string]*presenceEntry{}}
}

func (p *Presence) Connected(userID string) {
	p.update(userID, func(e *presenceEntry, now time.Time) {
		e.conns++
		e.lastActivity = now
		e.state = PresenceOnline
	})
}

func (p *Presence) Disconnected(userID string) {
	p.update(userID, func(e *presenceEntry, now time.Time) {
		if e.conns > 0 {
			e.conns--
		}
		if e.conns == 0 {
			e.disconnectedAt = now
			e.state = PresenceReconnecting
		}
	})
}

func (p *Presence) Activity(userID string) {
	p.update(userID, func(e *presenceEntry, now time.Time) {
		e.lastActivity = now
		if e.conns > 0 {
			e.state = PresenceOnline
		}
	})
}

func (p *Presence) State(userID string) PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.users[userID]; ok {
		return e.state
	}
	return PresenceOffline
}

// Sweep applies the timeouts. Run calls it periodically.
func (p *Presence) Sweep() {
	now := p.clock()
	type change struct {
		user string
		st   PresenceState
	}
	var changes []change

	p.mu.Lock()
	for user, e := range p.users {
		switch {
		case e.state == PresenceReconnecting && now.Sub(e.disconnectedAt) >= p.cfg.GracePeriod:
			delete(p.users, user)
			changes = append(changes, change{user, PresenceOffline})
		case e.state == PresenceOnline && now.Sub(e.lastActivity) >= p.cfg.InactivityTimeout:
			e.state = PresenceIdle
			changes = append(changes, change{user, PresenceIdle})
		}
	}
	p.mu.Unlock()

	for _, c := range changes {
		p.onChange(c.user, c.st)
	}
}

func (p *Presence) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Sweep()
		}
	}
}

func (p *Presence) update(userID string, fn func(e *presenceEntry, now time.Time)) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	e, ok := p.users[userID]
	if !ok {
		e = &presenceEntry{state: PresenceOffline}
		p.users[userID] = e
	}
	before := e.state
	fn(e, p.clock())
	after := e.state
	p.mu.Unlock()

	if before != after {
		p.onChange(userID, after)
	}
}
