package server

import (
	"net"
	"time"

	"multicaster/protocol"
)

// writeTimeout 单帧写出的最长等待
const writeTimeout = 5 * time.Second

// Peer 一个远端连接。conn 为空时是监听用的占位槽。
type Peer struct {
	handle     Handle
	session    string // uuid，仅用于日志
	conn       net.Conn
	send       chan []byte
	done       chan struct{} // 写协程退出时关闭
	ready      bool
	players    []PlayerID
	lastPacket time.Time
	timedOut   bool
	closing    bool // 需要断开，不经过超时
}

func (p *Peer) placeholder() bool { return p.conn == nil }

func (p *Peer) owns(id PlayerID) bool {
	for _, pid := range p.players {
		if pid == id {
			return true
		}
	}
	return false
}

// stale 需要在本轮被清理
func (p *Peer) stale() bool { return p.timedOut || p.closing }

// enqueue 非阻塞入队，队列满返回 false
func (p *Peer) enqueue(frame []byte) bool {
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// writePump 独立协程，send 关闭后把剩余帧写完再关连接
func (p *Peer) writePump() {
	defer close(p.done)
	defer p.conn.Close()
	for frame := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := p.conn.Write(frame); err != nil {
			// 关闭连接让读协程报错，由循环清理；之后入队的帧因队列满被丢弃
			return
		}
	}
}

// readPump 独立协程，把收到的每一帧交给循环；出错时上报一次后退出
func (s *Server) readPump(h Handle, conn net.Conn) {
	for {
		payload, err := protocol.ReadFrame(conn)
		select {
		case s.inbox <- inbound{handle: h, payload: payload, err: err}:
		case <-s.quit:
			return
		}
		if err != nil {
			return
		}
	}
}
