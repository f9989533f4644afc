// Package server 权威服务端：监听、连接表、固定频率循环和状态广播。
//
// 连接表与位置表只在循环协程内读写；外部（admin HTTP、websocket）通过命令通道
// 提交请求，通过原子指针读取每轮发布的 Status。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	reuse "github.com/libp2p/go-reuseport"
	"go.uber.org/zap"

	"multicaster/config"
	"multicaster/protocol"
	"multicaster/vec"
)

// ErrStopped 服务端已停止，命令无法提交
var ErrStopped = errors.New("server: stopped")

const (
	defaultStepRate    = 60
	defaultTickRate    = 30
	defaultPeerTimeout = 5 * time.Second
	defaultLoopSleep   = 10 * time.Millisecond
	// acceptWait 每轮 Accept 的最长等待，保证循环不被监听阻塞
	acceptWait = time.Millisecond
	// defaultSendQueue 每个连接发送队列的默认长度
	defaultSendQueue = 64
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Status 每轮结束时发布的只读快照
type Status struct {
	Tick       uint64         `json:"tick"`
	Listening  bool           `json:"listening"`
	Peers      int            `json:"peers"`
	MaxPlayers int            `json:"max_players"`
	NextID     int32          `json:"next_id"`
	Spectators int            `json:"spectators"`
	Players    []PlayerStatus `json:"players"`
}

type PlayerStatus struct {
	ID int32   `json:"id"`
	X  float32 `json:"x"`
	Y  float32 `json:"y"`
}

type Server struct {
	cfg     config.Server
	log     *zap.SugaredLogger
	metrics *Metrics
	spawn   vec.Vec2

	addr        string
	ln          net.Listener
	listening   bool
	placeholder Handle

	registry   *Registry
	players    *PlayerTable
	spectators map[string]*spectator
	nextID     PlayerID
	active     int

	stepSched schedule
	tickSched schedule
	tickSeq   uint64
	last      time.Time

	inbox    chan inbound
	commands chan command
	status   atomic.Pointer[Status]

	// flushing 已移出连接表、写协程还在冲刷队列的连接
	flushing []*Peer
	pumps    sync.WaitGroup

	cmdMu   sync.RWMutex
	stopped bool

	started  bool
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New spawn 为新玩家的出生点（通常取自地图）；零值的频率和时长取默认值
func New(cfg config.Server, spawn vec.Vec2, log *zap.SugaredLogger) *Server {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.StepRate <= 0 {
		cfg.StepRate = defaultStepRate
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = defaultPeerTimeout
	}
	if cfg.LoopSleep <= 0 {
		cfg.LoopSleep = defaultLoopSleep
	}
	return &Server{
		cfg:        cfg,
		log:        log,
		metrics:    &Metrics{},
		spawn:      spawn,
		addr:       cfg.ListenAddr(),
		registry:   NewRegistry(cfg.MaxPlayers + 1),
		players:    NewPlayerTable(),
		spectators: make(map[string]*spectator),
		stepSched:  newSchedule(cfg.StepRate),
		tickSched:  newSchedule(cfg.TickRate),
		inbox:      make(chan inbound, 256),
		commands:   make(chan command, 16),
		quit:       make(chan struct{}),
	}
}

// Start 绑定端口并启动循环协程，不阻塞
func (s *Server) Start() error {
	if s.started {
		return errors.New("server: already started")
	}
	if err := s.startListening(); err != nil {
		return err
	}
	// 之后恢复监听时沿用实际端口（配置端口为 0 时也一样）
	s.addr = s.ln.Addr().String()
	s.started = true
	s.publishStatus()
	s.wg.Add(1)
	go s.run()
	s.log.Infow("server started", "addr", s.addr, "max_players", s.cfg.MaxPlayers)
	return nil
}

// Stop 通知循环退出并等待；返回后不再有任何连接表访问和 socket 操作，
// 所有读写协程都已退出
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

// Addr 实际监听地址
func (s *Server) Addr() string { return s.addr }

func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) Status() Status {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// Broadcast 由循环向所有就绪连接发送系统文本
func (s *Server) Broadcast(ctx context.Context, text string) error {
	if len(text) > protocol.MaxTextSize {
		return fmt.Errorf("broadcast %d bytes: %w", len(text), protocol.ErrFrameTooLarge)
	}
	return s.submit(ctx, broadcastCmd{text: text})
}

// Kick 断开拥有该玩家的连接；玩家不存在时返回 false
func (s *Server) Kick(ctx context.Context, id PlayerID) (bool, error) {
	reply := make(chan bool, 1)
	if err := s.submit(ctx, kickCmd{id: id, reply: reply}); err != nil {
		return false, err
	}
	select {
	case found := <-reply:
		return found, nil
	case <-s.quit:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// submit 停止后一律拒绝；停止前进入通道的命令保证会被执行
func (s *Server) submit(ctx context.Context, c command) error {
	s.cmdMu.RLock()
	defer s.cmdMu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.commands <- c:
		return nil
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startListening 重新绑定端口并预留一个占位槽
func (s *Server) startListening() error {
	ln, err := reuse.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.listening = true
	s.placeholder = s.registry.Insert(&Peer{})
	s.log.Infow("listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) stopListening() {
	if !s.listening {
		return
	}
	_ = s.ln.Close()
	s.listening = false
	if p := s.registry.Get(s.placeholder); p != nil && p.placeholder() {
		s.registry.Remove(s.placeholder)
	}
	s.log.Infow("player cap reached, listening suspended", "active", s.active)
}

// drain 非阻塞地处理所有已到达的命令和帧
func (s *Server) drain(now time.Time) bool {
	worked := false
	for {
		select {
		case c := <-s.commands:
			c.apply(s)
			worked = true
		case in := <-s.inbox:
			s.receive(in, now)
			worked = true
		default:
			return worked
		}
	}
}

// drainCommands 只在 shutdown 中用：执行停止前已入队的命令
func (s *Server) drainCommands() {
	for {
		select {
		case c := <-s.commands:
			c.apply(s)
		default:
			return
		}
	}
}

func (s *Server) receive(in inbound, now time.Time) {
	p := s.registry.Get(in.handle)
	if p == nil || !p.ready || p.closing {
		return
	}
	if in.err != nil {
		s.log.Infow("peer connection closed", "peer", p.session, "err", in.err)
		p.closing = true
		return
	}
	p.lastPacket = now
	s.metrics.IncFramesIn()

	m, err := protocol.DecodeClient(in.payload)
	if err != nil {
		s.metrics.IncMalformed()
		s.log.Debugw("drop malformed frame", "peer", p.session, "err", err)
		return
	}
	s.handleMessage(p, m)
}

// acceptOne 每轮最多接入一个连接，放进占位槽
func (s *Server) acceptOne(now time.Time) bool {
	if !s.listening {
		return false
	}
	if d, ok := s.ln.(deadliner); ok {
		_ = d.SetDeadline(time.Now().Add(acceptWait))
	}
	conn, err := s.ln.Accept()
	if err != nil {
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			s.log.Warnw("accept failed", "err", err)
		}
		return false
	}

	p := s.registry.Get(s.placeholder)
	if p == nil {
		p = &Peer{}
		s.registry.Insert(p)
	}
	id := s.nextID
	s.nextID++

	p.conn = conn
	p.session = uuid.NewString()
	p.send = make(chan []byte, s.cfg.SendQueue)
	p.done = make(chan struct{})
	p.players = []PlayerID{id}
	p.lastPacket = now
	s.players.Add(id, s.spawn)

	h := p.handle
	s.goPump(p.writePump)
	s.goPump(func() { s.readPump(h, conn) })

	self := stateOf(id, s.spawn)
	s.sendTo(p, protocol.SpawnSelf{Player: self})
	s.sendTo(p, s.initialState())
	s.sendToAll(protocol.PlayerConnect{Player: self})
	s.broadcastText(fmt.Sprintf("Player number %d joined", id))
	p.ready = true
	s.active++
	s.metrics.IncAccepted()
	s.log.Infow("player joined", "peer", p.session, "player", id, "remote", conn.RemoteAddr().String())

	if s.active >= s.cfg.MaxPlayers {
		s.stopListening()
	} else {
		s.placeholder = s.registry.Insert(&Peer{})
	}
	return true
}

func (s *Server) checkTimeouts(now time.Time) {
	s.registry.Each(func(_ Handle, p *Peer) {
		if !p.ready || p.timedOut {
			return
		}
		if now.Sub(p.lastPacket) > s.cfg.PeerTimeout {
			p.timedOut = true
			s.metrics.IncTimeouts()
			s.log.Warnw("peer timed out", "peer", p.session, "players", p.players, "silence", now.Sub(p.lastPacket))
		}
	})
}

// sweep 先收集再删除，删除后有空位就恢复监听
func (s *Server) sweep() bool {
	s.pruneFlushing()
	var stale []Handle
	s.registry.Each(func(h Handle, p *Peer) {
		if p.ready && p.stale() {
			stale = append(stale, h)
		}
	})
	if len(stale) == 0 {
		return false
	}

	for _, h := range stale {
		p := s.registry.Get(h)
		p.ready = false
		for _, id := range p.players {
			s.players.Remove(id)
			s.sendToAll(protocol.PlayerDisconnect{ID: int32(id)})
		}
		s.registry.Remove(h)
		close(p.send)
		s.flushing = append(s.flushing, p)
		s.active--
		s.metrics.IncDisconnects()
		s.log.Infow("peer removed", "peer", p.session, "players", p.players, "timed_out", p.timedOut)
		s.broadcastText("A player has disconnected")
	}

	if !s.listening && s.active < s.cfg.MaxPlayers {
		if err := s.startListening(); err != nil {
			s.log.Errorw("resume listening failed", "err", err)
		}
	}
	return true
}

// pruneFlushing 去掉写协程已经退出的连接
func (s *Server) pruneFlushing() {
	kept := s.flushing[:0]
	for _, p := range s.flushing {
		select {
		case <-p.done:
		default:
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(s.flushing); i++ {
		s.flushing[i] = nil
	}
	s.flushing = kept
}

// goPump 所有连接协程都经过这里启动，Stop 会等它们退出
func (s *Server) goPump(f func()) {
	s.pumps.Add(1)
	go func() {
		defer s.pumps.Done()
		f()
	}()
}

// oversize 超过单帧上限的负载不入队：对端 ReadFrame 会把它当成断线
func (s *Server) oversize(payload []byte, t protocol.ServerType) bool {
	if len(payload) <= protocol.MaxFrameSize {
		return false
	}
	s.metrics.IncDroppedSends()
	s.log.Warnw("outbound frame too large, dropped", "type", t.String(), "size", len(payload), "max", protocol.MaxFrameSize)
	return true
}

func (s *Server) sendTo(p *Peer, m protocol.ServerMessage) {
	payload := protocol.EncodeServer(m)
	if s.oversize(payload, m.ServerType()) {
		return
	}
	s.enqueue(p, protocol.Frame(payload), m.ServerType())
}

func (s *Server) enqueue(p *Peer, frame []byte, t protocol.ServerType) {
	if p.enqueue(frame) {
		s.metrics.IncFramesOut()
		return
	}
	s.metrics.IncDroppedSends()
	s.log.Warnw("send queue full, frame dropped", "peer", p.session, "type", t.String())
}

// sendToAll 只发给就绪连接；全量状态和文本同时推给观战者
func (s *Server) sendToAll(m protocol.ServerMessage) {
	payload := protocol.EncodeServer(m)
	if s.oversize(payload, m.ServerType()) {
		return
	}
	frame := protocol.Frame(payload)
	s.registry.Each(func(_ Handle, p *Peer) {
		if p.ready {
			s.enqueue(p, frame, m.ServerType())
		}
	})
	switch m.(type) {
	case protocol.UpdateClientState, protocol.BroadcastMessage:
		for _, sp := range s.spectators {
			sp.enqueue(payload)
		}
	}
}

func (s *Server) broadcastText(text string) {
	s.sendToAll(protocol.BroadcastMessage{Text: text})
}

func (s *Server) stateMessage() protocol.UpdateClientState {
	return protocol.UpdateClientState{Players: s.players.States()}
}

// initialState 只包含就绪连接拥有的玩家
func (s *Server) initialState() protocol.InitialState {
	var ps []protocol.PlayerState
	s.registry.Each(func(_ Handle, p *Peer) {
		if !p.ready {
			return
		}
		for _, id := range p.players {
			if pos, ok := s.players.Get(id); ok {
				ps = append(ps, stateOf(id, pos))
			}
		}
	})
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return protocol.InitialState{IDCounter: int32(s.nextID), Players: ps}
}

func (s *Server) publishStatus() {
	st := &Status{
		Tick:       s.tickSeq,
		Listening:  s.listening,
		Peers:      s.active,
		MaxPlayers: s.cfg.MaxPlayers,
		NextID:     int32(s.nextID),
		Spectators: len(s.spectators),
	}
	for _, ps := range s.players.States() {
		st.Players = append(st.Players, PlayerStatus{ID: ps.ID, X: ps.X, Y: ps.Y})
	}
	s.status.Store(st)
}

// shutdown 循环退出后执行。停止前已入队的命令照常执行；
// 连接直接关闭，未写出的帧丢弃
func (s *Server) shutdown() {
	s.cmdMu.Lock()
	s.stopped = true
	s.cmdMu.Unlock()
	s.drainCommands()

	if s.listening {
		_ = s.ln.Close()
		s.listening = false
	}
	var all []Handle
	s.registry.Each(func(h Handle, _ *Peer) { all = append(all, h) })
	for _, h := range all {
		p := s.registry.Get(h)
		if !p.placeholder() {
			close(p.send)
			_ = p.conn.Close()
		}
		s.registry.Remove(h)
	}
	for _, p := range s.flushing {
		_ = p.conn.Close()
	}
	s.flushing = nil
	s.active = 0
	for id, sp := range s.spectators {
		delete(s.spectators, id)
		sp.close()
		_ = sp.ws.Close()
	}
	s.pumps.Wait()
	s.publishStatus()
	s.log.Infow("server stopped", "ticks", s.tickSeq)
}
