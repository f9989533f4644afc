package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// spectator 只读观战连接：收到全量状态和文本广播的负载（不带长度前缀）
type spectator struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

func newSpectator(ws *websocket.Conn) *spectator {
	return &spectator{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, 64),
	}
}

// enqueue 非阻塞，满则丢弃
func (sp *spectator) enqueue(b []byte) {
	select {
	case sp.send <- b:
	default:
	}
}

// close 只在循环协程内调用，写协程冲刷剩余消息后关闭连接
func (sp *spectator) close() {
	close(sp.send)
}

func (sp *spectator) writePump() {
	defer sp.ws.Close()
	for msg := range sp.send {
		_ = sp.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sp.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
	_ = sp.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// spectatorReadPump 丢弃观战端发来的内容，读失败时请求循环移除
func (s *Server) spectatorReadPump(sp *spectator) {
	defer func() { _ = s.submit(context.Background(), removeSpectatorCmd{id: sp.id}) }()
	sp.ws.SetReadLimit(1 << 10)
	for {
		if _, _, err := sp.ws.NextReader(); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleSpectate GET /ws/spectate
func (s *Server) HandleSpectate(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	// 读写协程由循环在登记时启动；命令一旦提交成功，停止前一定会被执行
	sp := newSpectator(ws)
	if err := s.submit(r.Context(), addSpectatorCmd{sp: sp}); err != nil {
		_ = ws.Close()
	}
}
