package server

import (
	"sort"

	"multicaster/protocol"
	"multicaster/vec"
)

// PlayerID 服务端分配，单调递增，进程内不复用
type PlayerID int32

// PlayerTable 权威位置表：PlayerID -> 位置。只在循环协程内访问。
type PlayerTable struct {
	pos map[PlayerID]vec.Vec2
}

func NewPlayerTable() *PlayerTable {
	return &PlayerTable{pos: make(map[PlayerID]vec.Vec2)}
}

func (t *PlayerTable) Add(id PlayerID, p vec.Vec2) { t.pos[id] = p }

func (t *PlayerTable) Remove(id PlayerID) { delete(t.pos, id) }

func (t *PlayerTable) Len() int { return len(t.pos) }

func (t *PlayerTable) Get(id PlayerID) (vec.Vec2, bool) {
	p, ok := t.pos[id]
	return p, ok
}

// Set 覆盖已存在的条目；客户端上报的位置直接信任，不做移动校验
func (t *PlayerTable) Set(id PlayerID, p vec.Vec2) bool {
	if _, ok := t.pos[id]; !ok {
		return false
	}
	t.pos[id] = p
	return true
}

// States 按 ID 升序输出，保证同一状态编码结果一致
func (t *PlayerTable) States() []protocol.PlayerState {
	out := make([]protocol.PlayerState, 0, len(t.pos))
	for id, p := range t.pos {
		out = append(out, stateOf(id, p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func stateOf(id PlayerID, p vec.Vec2) protocol.PlayerState {
	return protocol.PlayerState{ID: int32(id), X: float32(p.X), Y: float32(p.Y)}
}

func vecOf(x, y float32) vec.Vec2 { return vec.New(float64(x), float64(y)) }
