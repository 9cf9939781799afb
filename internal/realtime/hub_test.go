package realtime

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dropship-platform/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeVerifier map[string]auth.Claims

func (f fakeVerifier) Verify(tok string, _ auth.TokenType, _ time.Time) (auth.Claims, error) {
	c, ok := f[tok]
	if !ok {
		return auth.Claims{}, errInvalid
	}
	return c, nil
}

var errInvalid = errors.New("invalid token")

func claimsFor(userID, role string) auth.Claims {
	c := auth.Claims{AppMetadata: auth.AppMetadata{Role: role}}
	c.Subject = userID
	return c
}

type presenceLog struct {
	mu    sync.Mutex
	calls []string
}

func (p *presenceLog) Connected(u string)    { p.add("connected:" + u) }
func (p *presenceLog) Disconnected(u string) { p.add("disconnected:" + u) }
func (p *presenceLog) Activity(u string)     { p.add("activity:" + u) }

func (p *presenceLog) add(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s)
}

func (p *presenceLog) has(s string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == s {
			return true
		}
	}
	return false
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func TestHub_TargetsOwnerAndStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	presence := &presenceLog{}
	hub := NewHub(presence, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", Handler(hub, fakeVerifier{
		"u1":    claimsFor("u1", "dropshipper"),
		"u2":    claimsFor("u2", "dropshipper"),
		"admin": claimsFor("a1", "admin"),
	}, nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	c1 := dial(t, srv, "u1")
	defer c1.Close()
	c2 := dial(t, srv, "u2")
	defer c2.Close()
	ca := dial(t, srv, "admin")
	defer ca.Close()

	waitFor(t, func() bool { return hub.Clients() == 3 })
	if !presence.has("connected:u1") || !presence.has("connected:u2") {
		t.Fatalf("expected presence connect signals")
	}

	hub.Publish(context.Background(), Event{Type: EventWalletUpdated, UserID: "u1", EntityID: "u1"})

	for _, c := range []*websocket.Conn{c1, ca} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := c.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type != EventWalletUpdated || ev.UserID != "u1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	_ = c2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var ev Event
	if err := c2.ReadJSON(&ev); err == nil {
		t.Fatalf("u2 must not receive u1's events, got %+v", ev)
	}

	_ = c1.Close()
	waitFor(t, func() bool { return presence.has("disconnected:u1") })
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	r := gin.New()
	r.GET("/ws", Handler(hub, fakeVerifier{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Fatalf("expected foreign origin rejected")
	}
	req.Header.Set("Origin", "https://app.example.com")
	if !check(req) {
		t.Fatalf("expected allowed origin accepted")
	}
}

func (p *presenceLog) count(s string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == s {
			n++
		}
	}
	return n
}

func TestHub_SlowClientDropSettlesPresence(t *testing.T) {
	presence := &presenceLog{}
	hub := NewHub(presence, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// An unbuffered send channel with no writePump is always full.
	slow := &Client{hub: hub, send: make(chan []byte), userID: "u1"}
	hub.register <- slow
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.Publish(context.Background(), Event{Type: EventWalletUpdated, UserID: "u1"})
	waitFor(t, func() bool { return hub.Clients() == 0 })
	waitFor(t, func() bool { return presence.has("disconnected:u1") })

	// readPump still unregisters after the drop.
	hub.unregister <- slow

	next := &Client{hub: hub, send: make(chan []byte, 1), userID: "u1"}
	hub.register <- next
	waitFor(t, func() bool { return presence.count("connected:u1") == 2 })
	if n := presence.count("disconnected:u1"); n != 1 {
		t.Fatalf("expected one disconnect, got %d", n)
	}

	hub.unregister <- next
	waitFor(t, func() bool { return presence.count("disconnected:u1") == 2 })
}
