// Package client 客户端会话：连接权威服务端，固定频率上报位置，应用服务端广播。
package client

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"

	"multicaster/config"
	"multicaster/protocol"
	"multicaster/vec"
)

var ErrNotConnected = errors.New("client: not connected")

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// frame 读协程交给会话的一帧
type frame struct {
	payload []byte
	err     error
}

// Session 只在调用方的帧循环里使用，不做并发保护
type Session struct {
	cfg  config.Client
	log  *zap.SugaredLogger
	addr string

	conn  net.Conn
	inbox chan frame
	done  chan struct{}
	state State

	lastFailure  time.Time
	lastReceived time.Time
	lastUpdate   time.Time
	sendAcc      time.Duration
	sendInterval time.Duration

	self       int32
	hasSelf    bool
	idCounter  int32
	players    map[int32]vec.Vec2
	broadcasts []string
	events     []protocol.PlayerEvent
}

// NewSession 构造时即尝试一次限时连接；失败不致命，记录失败时间后保持断开状态
func NewSession(cfg config.Client, addr string, log *zap.SugaredLogger) *Session {
	rate := cfg.SendRate
	if rate <= 0 {
		rate = 30
	}
	s := &Session{
		cfg:          cfg,
		log:          log,
		addr:         addr,
		players:      make(map[int32]vec.Vec2),
		sendInterval: time.Second / time.Duration(rate),
	}
	_ = s.connect(time.Now())
	return s
}

func (s *Session) connect(now time.Time) error {
	conn, err := net.DialTimeout("tcp", s.addr, s.cfg.ConnectTimeout)
	if err != nil {
		s.lastFailure = now
		s.log.Warnw("connect failed", "addr", s.addr, "err", err)
		return fmt.Errorf("connect %s: %w", s.addr, err)
	}
	s.conn = conn
	s.inbox = make(chan frame, 256)
	s.done = make(chan struct{})
	s.state = Connected
	s.lastReceived = now
	s.lastUpdate = now
	s.sendAcc = 0
	s.hasSelf = false
	s.players = make(map[int32]vec.Vec2)
	go readPump(conn, s.inbox, s.done)
	s.log.Infow("connected", "addr", s.addr)
	return nil
}

func readPump(conn net.Conn, inbox chan<- frame, done <-chan struct{}) {
	for {
		payload, err := protocol.ReadFrame(conn)
		select {
		case inbox <- frame{payload: payload, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) Addr() string { return s.addr }

func (s *Session) State() State { return s.state }

func (s *Session) LastFailure() time.Time { return s.lastFailure }

// ID 收到 SpawnSelf 之前返回 false
func (s *Session) ID() (int32, bool) { return s.self, s.hasSelf }

// Players 其他玩家位置的只读镜像（不含自己）
func (s *Session) Players() map[int32]vec.Vec2 {
	out := make(map[int32]vec.Vec2, len(s.players))
	for id, p := range s.players {
		if s.hasSelf && id == s.self {
			continue
		}
		out[id] = p
	}
	return out
}

// PlayerIDs 按升序
func (s *Session) PlayerIDs() []int32 {
	ids := make([]int32, 0, len(s.players))
	for id := range s.Players() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NextID 最近一次 InitialState 里服务端的下一个玩家 ID
func (s *Session) NextID() int32 { return s.idCounter }

func (s *Session) Broadcasts() []string { return s.broadcasts }

func (s *Session) Events() []protocol.PlayerEvent { return s.events }

// CanReconnect 断开后需等待 RetryInterval
func (s *Session) CanReconnect(now time.Time) bool {
	return s.state == Disconnected && now.Sub(s.lastFailure) >= s.cfg.RetryInterval
}

// Reconnect 未到重试时间时直接返回 false
func (s *Session) Reconnect(now time.Time) bool {
	if !s.CanReconnect(now) {
		return false
	}
	s.log.Infow("reconnecting", "addr", s.addr)
	return s.connect(now) == nil
}

// Update 每帧调用：排空收到的帧，检查超时，按发送频率上报 pos
func (s *Session) Update(now time.Time, pos vec.Vec2) {
	if s.state != Connected {
		return
	}
	s.drain(now)
	if s.state != Connected {
		return
	}
	if now.Sub(s.lastReceived) > s.cfg.Timeout {
		s.log.Warnw("connection lost", "addr", s.addr, "silence", now.Sub(s.lastReceived))
		s.disconnect(now)
		return
	}

	s.sendAcc += now.Sub(s.lastUpdate)
	s.lastUpdate = now
	for s.sendAcc >= s.sendInterval {
		s.sendAcc -= s.sendInterval
		if !s.hasSelf {
			continue
		}
		if err := s.send(protocol.PositionUpdate{PlayerID: s.self, X: float32(pos.X), Y: float32(pos.Y)}); err != nil {
			s.disconnect(now)
			return
		}
	}
}

func (s *Session) drain(now time.Time) {
	for {
		select {
		case f := <-s.inbox:
			if f.err != nil {
				s.log.Warnw("connection closed by server", "addr", s.addr, "err", f.err)
				s.disconnect(now)
				return
			}
			s.lastReceived = now
			m, err := protocol.DecodeServer(f.payload)
			if err != nil {
				s.log.Debugw("drop malformed frame", "err", err)
				continue
			}
			s.apply(m)
		default:
			return
		}
	}
}

func (s *Session) apply(m protocol.ServerMessage) {
	switch m := m.(type) {
	case protocol.SpawnSelf:
		s.self = m.Player.ID
		s.hasSelf = true
		s.players[m.Player.ID] = vecOf(m.Player)
	case protocol.InitialState:
		s.idCounter = m.IDCounter
		for _, p := range m.Players {
			s.players[p.ID] = vecOf(p)
		}
	case protocol.PlayerConnect:
		s.players[m.Player.ID] = vecOf(m.Player)
	case protocol.UpdateClientState:
		next := make(map[int32]vec.Vec2, len(m.Players))
		for _, p := range m.Players {
			next[p.ID] = vecOf(p)
		}
		s.players = next
	case protocol.PlayerDisconnect:
		delete(s.players, m.ID)
	case protocol.BroadcastMessage:
		s.broadcasts = append(s.broadcasts, m.Text)
	case protocol.PlayerEvent:
		s.events = append(s.events, m)
	}
}

func vecOf(p protocol.PlayerState) vec.Vec2 { return vec.New(float64(p.X), float64(p.Y)) }

func (s *Session) SendChat(text string) error {
	return s.send(protocol.ChatMessage{Text: text})
}

func (s *Session) SendAction(action int32) error {
	return s.send(protocol.PlayerAction{Action: action})
}

func (s *Session) send(m protocol.ClientMessage) error {
	if s.state != Connected {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout))
	if err := protocol.WriteFrame(s.conn, protocol.EncodeClient(m)); err != nil {
		s.log.Warnw("send failed", "addr", s.addr, "err", err)
		return err
	}
	return nil
}

// disconnect 断开并记录时间，作为重连等待的起点
func (s *Session) disconnect(now time.Time) {
	if s.state != Connected {
		return
	}
	close(s.done)
	_ = s.conn.Close()
	s.state = Disconnected
	s.lastFailure = now
}

// Close 通知服务端退出后关闭连接
func (s *Session) Close() {
	if s.state != Connected {
		return
	}
	_ = s.send(protocol.Quit{})
	s.disconnect(time.Now())
	s.log.Infow("session closed", "addr", s.addr)
}
