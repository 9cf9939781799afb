package chat

import (
	"testing"
	"time"
)

type presenceClock struct{ t time.Time }

func (c *presenceClock) now() time.Time { return c.t }

func newTestPresence() (*Presence, *presenceClock, *[]string) {
	clk := &presenceClock{t: time.Unix(0, 0)}
	var changes []string
	p := NewPresence(PresenceConfig{InactivityTimeout: 30 * time.Second, GracePeriod: 30 * time.Second}, func(u string, st PresenceState) {
		changes = append(changes, u+":"+string(st))
	})
	p.clock = clk.now
	return p, clk, &changes
}

func TestPresence_GracePeriodBeforeOffline(t *testing.T) {
	p, clk, changes := newTestPresence()

	p.Connected("u1")
	p.Disconnected("u1")
	if got := p.State("u1"); got != PresenceReconnecting {
		t.Fatalf("expected reconnecting, got %s", got)
	}

	clk.t = clk.t.Add(29 * time.Second)
	p.Sweep()
	if got := p.State("u1"); got != PresenceReconnecting {
		t.Fatalf("expected still reconnecting inside grace, got %s", got)
	}

	clk.t = clk.t.Add(time.Second)
	p.Sweep()
	if got := p.State("u1"); got != PresenceOffline {
		t.Fatalf("expected offline after grace, got %s", got)
	}

	want := []string{"u1:online", "u1:reconnecting", "u1:offline"}
	if len(*changes) != len(want) {
		t.Fatalf("unexpected changes: %v", *changes)
	}
	for i := range want {
		if (*changes)[i] != want[i] {
			t.Fatalf("unexpected changes: %v", *changes)
		}
	}
}

func TestPresence_ReconnectWithinGrace(t *testing.T) {
	p, clk, _ := newTestPresence()
	p.Connected("u1")
	p.Disconnected("u1")
	clk.t = clk.t.Add(10 * time.Second)
	p.Connected("u1")

	clk.t = clk.t.Add(25 * time.Second)
	p.Sweep()
	if got := p.State("u1"); got != PresenceOnline {
		t.Fatalf("expected online after reconnect, got %s", got)
	}
}

func TestPresence_IdleAndActivity(t *testing.T) {
	p, clk, _ := newTestPresence()
	p.Connected("u1")
	p.Connected("u1")
	p.Disconnected("u1")
	if got := p.State("u1"); got != PresenceOnline {
		t.Fatalf("expected online with one connection left, got %s", got)
	}

	clk.t = clk.t.Add(30 * time.Second)
	p.Sweep()
	if got := p.State("u1"); got != PresenceIdle {
		t.Fatalf("expected idle, got %s", got)
	}
	p.Activity("u1")
	if got := p.State("u1"); got != PresenceOnline {
		t.Fatalf("expected online after activity, got %s", got)
	}
	if got := p.State("nobody"); got != PresenceOffline {
		t.Fatalf("expected unknown user offline, got %s", got)
	}
}
