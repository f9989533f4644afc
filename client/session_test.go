package client

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"multicaster/config"
	"multicaster/server"
	"multicaster/vec"
)

func clientConfig() config.Client {
	return config.Client{
		ConnectTimeout: time.Second,
		Timeout:        2 * time.Second,
		RetryInterval:  3 * time.Second,
		SendRate:       30,
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Server{
		MaxPlayers:  4,
		PeerTimeout: 5 * time.Second,
		StepRate:    60,
		TickRate:    30,
		LoopSleep:   time.Millisecond,
	}
	s := server.New(cfg, vec.New(2, 2), zaptest.NewLogger(t).Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	_, port, _ := net.SplitHostPort(s.Addr())
	return net.JoinHostPort("127.0.0.1", port)
}

// pump 驱动若干会话直到 cond 成立
func pump(t *testing.T, cond func() bool, sessions map[*Session]vec.Vec2) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for s, pos := range sessions {
			s.Update(time.Now(), pos)
		}
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestConnectFailureIsNotFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	before := time.Now()
	s := NewSession(clientConfig(), addr, zaptest.NewLogger(t).Sugar())
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %v", s.State())
	}
	if s.LastFailure().Before(before) {
		t.Fatalf("failure time not recorded")
	}
	if s.CanReconnect(s.LastFailure().Add(time.Second)) {
		t.Fatalf("reconnect allowed before retry interval")
	}
	if !s.CanReconnect(s.LastFailure().Add(3 * time.Second)) {
		t.Fatalf("reconnect not allowed after retry interval")
	}
	if err := s.SendChat("x"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectAfterServerStarts(t *testing.T) {
	addr := startServer(t)
	s := NewSession(clientConfig(), "127.0.0.1:1", zaptest.NewLogger(t).Sugar())
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected")
	}
	s.addr = addr
	if s.Reconnect(time.Now()) {
		t.Fatalf("reconnect should wait for the retry interval")
	}
	if !s.Reconnect(s.LastFailure().Add(s.cfg.RetryInterval)) {
		t.Fatalf("reconnect failed")
	}
	pump(t, func() bool { _, ok := s.ID(); return ok && s.NextID() == 1 }, map[*Session]vec.Vec2{s: vec.New(2, 2)})
}

func TestSessionsSharePositionsAndChat(t *testing.T) {
	addr := startServer(t)
	log := zaptest.NewLogger(t).Sugar()
	a := NewSession(clientConfig(), addr, log)
	b := NewSession(clientConfig(), addr, log)
	defer a.Close()
	defer b.Close()
	if a.State() != Connected || b.State() != Connected {
		t.Fatalf("expected both sessions connected")
	}
	sessions := map[*Session]vec.Vec2{a: vec.New(5, 6), b: vec.New(2, 2)}

	pump(t, func() bool {
		aid, ok := a.ID()
		if !ok {
			return false
		}
		p, seen := b.Players()[aid]
		return seen && p == vec.New(5, 6)
	}, sessions)

	if err := a.SendChat("hi"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	pump(t, func() bool { return contains(b.Broadcasts(), "hi") && contains(a.Broadcasts(), "hi") }, sessions)

	if err := b.SendAction(7); err != nil {
		t.Fatalf("action: %v", err)
	}
	bid, _ := b.ID()
	pump(t, func() bool {
		for _, e := range a.Events() {
			if e.ID == bid && e.Action == 7 {
				return true
			}
		}
		return false
	}, sessions)
}

func TestCloseRemovesPlayerForOthers(t *testing.T) {
	addr := startServer(t)
	log := zaptest.NewLogger(t).Sugar()
	a := NewSession(clientConfig(), addr, log)
	b := NewSession(clientConfig(), addr, log)
	defer b.Close()
	sessions := map[*Session]vec.Vec2{a: vec.New(2, 2), b: vec.New(2, 2)}

	pump(t, func() bool {
		aid, ok := a.ID()
		if !ok {
			return false
		}
		_, seen := b.Players()[aid]
		return seen
	}, sessions)

	aid, _ := a.ID()
	a.Close()
	if a.State() != Disconnected {
		t.Fatalf("expected disconnected after close")
	}
	pump(t, func() bool {
		_, seen := b.Players()[aid]
		return !seen && contains(b.Broadcasts(), "A player has disconnected")
	}, map[*Session]vec.Vec2{b: vec.New(2, 2)})
}

func TestSilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	cfg := clientConfig()
	cfg.Timeout = 100 * time.Millisecond
	s := NewSession(cfg, ln.Addr().String(), zaptest.NewLogger(t).Sugar())
	if s.State() != Connected {
		t.Fatalf("expected connected")
	}
	start := time.Now()
	s.Update(start.Add(50*time.Millisecond), vec.New(2, 2))
	if s.State() != Connected {
		t.Fatalf("disconnected too early")
	}
	s.Update(start.Add(200*time.Millisecond), vec.New(2, 2))
	if s.State() != Disconnected {
		t.Fatalf("expected connection lost after timeout")
	}
	if !s.LastFailure().Equal(start.Add(200 * time.Millisecond)) {
		t.Fatalf("loss time not recorded")
	}
}
