package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"multicaster/protocol"
	"multicaster/vec"
)

func TestAdminHealthAndStatus(t *testing.T) {
	s := startServer(t, testConfig(4))
	connect(t, s)
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	eventually(t, func() bool { return s.Status().Peers == 1 }, "peer visible in status")
	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Peers != 1 || len(st.Players) != 1 || st.MaxPlayers != 4 || !st.Listening {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestAdminMetrics(t *testing.T) {
	s := startServer(t, testConfig(4))
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Metrics map[string]any `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"tick_count", "step_count", "frames_in", "dropped_sends", "timeouts", "malformed"} {
		if _, ok := body.Metrics[k]; !ok {
			t.Fatalf("metric %q missing", k)
		}
	}
}

func TestAdminBroadcastReachesPeers(t *testing.T) {
	s := startServer(t, testConfig(4))
	a := connect(t, s)
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/broadcast", "application/json", strings.NewReader(`{"message":"server restarting"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("broadcast status %d", resp.StatusCode)
	}
	a.expect(t, text("server restarting"))

	resp, err = http.Post(srv.URL+"/admin/broadcast", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	big, _ := json.Marshal(map[string]string{"message": strings.Repeat("z", protocol.MaxTextSize+1)})
	resp, err = http.Post(srv.URL+"/admin/broadcast", "application/json", strings.NewReader(string(big)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversize message, got %d", resp.StatusCode)
	}
	a.send(t, protocol.ChatMessage{Text: "after oversize"})
	a.expect(t, text("after oversize"))
}

func TestSpectatorClosedOnStop(t *testing.T) {
	s := New(testConfig(4), vec.New(2, 2), zaptest.NewLogger(t).Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/spectate"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	eventually(t, func() bool { return s.Status().Spectators == 1 }, "spectator registered")
	s.Stop()

	if st := s.Status(); st.Spectators != 0 {
		t.Fatalf("spectator still registered after stop %+v", st)
	}
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatalf("spectator connection still open after Stop")
			}
			return
		}
	}
}

func TestAdminKick(t *testing.T) {
	s := startServer(t, testConfig(4))
	a := connect(t, s)
	b := connect(t, s)
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/kick", "application/json", strings.NewReader(`{"player_id":42}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown player, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/admin/kick", "application/json", strings.NewReader(`{"player_id":0}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("kick status %d", resp.StatusCode)
	}
	b.expect(t, func(m protocol.ServerMessage) bool {
		d, ok := m.(protocol.PlayerDisconnect)
		return ok && d.ID == a.id
	})
}

func TestSpectatorReceivesState(t *testing.T) {
	s := startServer(t, testConfig(4))
	srv := httptest.NewServer(NewAdminRouter(s))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/spectate"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	eventually(t, func() bool { return s.Status().Spectators == 1 }, "spectator registered")

	connect(t, s)
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		kind, payload, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if kind != websocket.BinaryMessage {
			t.Fatalf("expected binary message, got %d", kind)
		}
		m, err := protocol.DecodeServer(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if u, ok := m.(protocol.UpdateClientState); ok && len(u.Players) == 1 {
			return
		}
	}
}
