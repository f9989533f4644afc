package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

type encoder struct{ buf []byte }

func (e *encoder) i32(v int32) { e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v)) }

func (e *encoder) f32(v float32) { e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(v)) }

func (e *encoder) str(s string) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) player(p PlayerState) {
	e.i32(p.ID)
	e.f32(p.X)
	e.f32(p.Y)
}

func (e *encoder) players(ps []PlayerState) {
	e.i32(int32(len(ps)))
	for _, p := range ps {
		e.player(p)
	}
}

// decoder 第一次越界后 err 固定，后续读取全部返回零值
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, d.off, len(d.buf)-d.off, ErrShortPayload)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) i32() int32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) f32() float32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

func (d *decoder) str() string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n) > uint64(len(d.buf)-d.off) {
		d.err = fmt.Errorf("string of %d bytes: %w", n, ErrShortPayload)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) player() PlayerState {
	return PlayerState{ID: d.i32(), X: d.f32(), Y: d.f32()}
}

func (d *decoder) players() []PlayerState {
	n := d.i32()
	if d.err != nil {
		return nil
	}
	// 每个玩家 12 字节，先校验长度，避免恶意计数导致大分配
	if n < 0 || int64(n)*12 > int64(len(d.buf)-d.off) {
		d.err = fmt.Errorf("player count %d: %w", n, ErrShortPayload)
		return nil
	}
	ps := make([]PlayerState, n)
	for i := range ps {
		ps[i] = d.player()
	}
	return ps
}

// EncodeClient 序列化客户端消息（不含长度前缀）
func EncodeClient(m ClientMessage) []byte {
	e := &encoder{buf: make([]byte, 0, 16)}
	e.i32(int32(m.ClientType()))
	switch m := m.(type) {
	case ChatMessage:
		e.str(m.Text)
	case PositionUpdate:
		e.i32(m.PlayerID)
		e.f32(m.X)
		e.f32(m.Y)
	case PlayerAction:
		e.i32(m.Action)
	case Quit:
	}
	return e.buf
}

func DecodeClient(b []byte) (ClientMessage, error) {
	d := &decoder{buf: b}
	t := ClientType(d.i32())
	if d.err != nil {
		return nil, d.err
	}
	var m ClientMessage
	switch t {
	case TypeChatMessage:
		m = ChatMessage{Text: d.str()}
	case TypePositionUpdate:
		m = PositionUpdate{PlayerID: d.i32(), X: d.f32(), Y: d.f32()}
	case TypePlayerAction:
		m = PlayerAction{Action: d.i32()}
	case TypeQuit:
		m = Quit{}
	default:
		return nil, fmt.Errorf("client type %d: %w", t, ErrUnknownType)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// EncodeServer 序列化服务端消息（不含长度前缀）
func EncodeServer(m ServerMessage) []byte {
	e := &encoder{buf: make([]byte, 0, 32)}
	e.i32(int32(m.ServerType()))
	switch m := m.(type) {
	case InitialState:
		e.i32(m.IDCounter)
		e.players(m.Players)
	case SpawnSelf:
		e.player(m.Player)
	case PlayerConnect:
		e.player(m.Player)
	case PlayerEvent:
		e.i32(m.ID)
		e.i32(m.Action)
	case PlayerDisconnect:
		e.i32(m.ID)
	case BroadcastMessage:
		e.str(m.Text)
	case UpdateClientState:
		e.players(m.Players)
	}
	return e.buf
}

func DecodeServer(b []byte) (ServerMessage, error) {
	d := &decoder{buf: b}
	t := ServerType(d.i32())
	if d.err != nil {
		return nil, d.err
	}
	var m ServerMessage
	switch t {
	case TypeInitialState:
		m = InitialState{IDCounter: d.i32(), Players: d.players()}
	case TypeSpawnSelf:
		m = SpawnSelf{Player: d.player()}
	case TypePlayerConnect:
		m = PlayerConnect{Player: d.player()}
	case TypePlayerEvent:
		m = PlayerEvent{ID: d.i32(), Action: d.i32()}
	case TypePlayerDisconnect:
		m = PlayerDisconnect{ID: d.i32()}
	case TypeBroadcastMessage:
		m = BroadcastMessage{Text: d.str()}
	case TypeUpdateClientState:
		m = UpdateClientState{Players: d.players()}
	default:
		return nil, fmt.Errorf("server type %d: %w", t, ErrUnknownType)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}
