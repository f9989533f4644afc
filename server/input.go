package server

import (
	"multicaster/protocol"
)

// inbound 读协程交给循环的一帧；err 非空表示连接已断
type inbound struct {
	handle  Handle
	payload []byte
	err     error
}

// command 来自 admin HTTP / websocket 的请求，在循环协程内执行
type command interface {
	apply(s *Server)
}

type broadcastCmd struct{ text string }

func (c broadcastCmd) apply(s *Server) {
	s.broadcastText(c.text)
}

// kickCmd reply 收到是否找到该玩家
type kickCmd struct {
	id    PlayerID
	reply chan bool
}

func (c kickCmd) apply(s *Server) {
	found := false
	s.registry.Each(func(_ Handle, p *Peer) {
		if p.ready && p.owns(c.id) {
			p.closing = true
			found = true
		}
	})
	c.reply <- found
}

type addSpectatorCmd struct{ sp *spectator }

func (c addSpectatorCmd) apply(s *Server) {
	s.spectators[c.sp.id] = c.sp
	s.goPump(c.sp.writePump)
	s.goPump(func() { s.spectatorReadPump(c.sp) })
	s.log.Infow("spectator joined", "spectator", c.sp.id)
}

type removeSpectatorCmd struct{ id string }

func (c removeSpectatorCmd) apply(s *Server) {
	if sp, ok := s.spectators[c.id]; ok {
		delete(s.spectators, c.id)
		sp.close()
		s.log.Infow("spectator left", "spectator", c.id)
	}
}

// handleMessage 分发一条已解码的客户端消息
func (s *Server) handleMessage(p *Peer, m protocol.ClientMessage) {
	switch m := m.(type) {
	case protocol.ChatMessage:
		s.broadcastText(m.Text)
	case protocol.PositionUpdate:
		// 只要求 ID 在表里，不校验归属和移动距离
		if !s.players.Set(PlayerID(m.PlayerID), vecOf(m.X, m.Y)) {
			s.log.Debugw("position update for unknown player", "peer", p.session, "player", m.PlayerID)
		}
	case protocol.PlayerAction:
		if len(p.players) == 0 {
			return
		}
		s.sendToAll(protocol.PlayerEvent{ID: int32(p.players[0]), Action: m.Action})
	case protocol.Quit:
		p.closing = true
	}
}
