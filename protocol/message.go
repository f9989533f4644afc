// Package protocol 客户端与服务端之间的二进制消息。
//
// 每帧 = 4 字节大端长度 + 负载；负载以 int32 类型头开始，
// 之后按类型写 int32/float32（大端），字符串为 uint32 长度 + UTF-8 字节。
package protocol

import "errors"

var (
	ErrUnknownType   = errors.New("protocol: unknown message type")
	ErrShortPayload  = errors.New("protocol: payload too short")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// ClientType 客户端 -> 服务端
type ClientType int32

const (
	TypeChatMessage ClientType = iota
	TypePositionUpdate
	TypePlayerAction
	TypeQuit
)

// ServerType 服务端 -> 客户端
type ServerType int32

const (
	TypeInitialState ServerType = iota
	TypeSpawnSelf
	TypePlayerConnect
	TypePlayerEvent
	TypePlayerDisconnect
	TypeBroadcastMessage
	TypeUpdateClientState
)

func (t ServerType) String() string {
	switch t {
	case TypeInitialState:
		return "InitialState"
	case TypeSpawnSelf:
		return "SpawnSelf"
	case TypePlayerConnect:
		return "PlayerConnect"
	case TypePlayerEvent:
		return "PlayerEvent"
	case TypePlayerDisconnect:
		return "PlayerDisconnect"
	case TypeBroadcastMessage:
		return "BroadcastMessage"
	case TypeUpdateClientState:
		return "UpdateClientState"
	}
	return "Unknown"
}

// PlayerState 线上的玩家位置三元组
type PlayerState struct {
	ID int32
	X  float32
	Y  float32
}

// ClientMessage 客户端消息的封闭集合
type ClientMessage interface {
	ClientType() ClientType
}

type ChatMessage struct{ Text string }

type PositionUpdate struct {
	PlayerID int32
	X        float32
	Y        float32
}

type PlayerAction struct{ Action int32 }

type Quit struct{}

func (ChatMessage) ClientType() ClientType    { return TypeChatMessage }
func (PositionUpdate) ClientType() ClientType { return TypePositionUpdate }
func (PlayerAction) ClientType() ClientType   { return TypePlayerAction }
func (Quit) ClientType() ClientType           { return TypeQuit }

// ServerMessage 服务端消息的封闭集合
type ServerMessage interface {
	ServerType() ServerType
}

// InitialState IDCounter 为下一个将要分配的玩家 ID
type InitialState struct {
	IDCounter int32
	Players   []PlayerState
}

type SpawnSelf struct{ Player PlayerState }

type PlayerConnect struct{ Player PlayerState }

type PlayerEvent struct {
	ID     int32
	Action int32
}

type PlayerDisconnect struct{ ID int32 }

type BroadcastMessage struct{ Text string }

type UpdateClientState struct{ Players []PlayerState }

func (InitialState) ServerType() ServerType      { return TypeInitialState }
func (SpawnSelf) ServerType() ServerType         { return TypeSpawnSelf }
func (PlayerConnect) ServerType() ServerType     { return TypePlayerConnect }
func (PlayerEvent) ServerType() ServerType       { return TypePlayerEvent }
func (PlayerDisconnect) ServerType() ServerType  { return TypePlayerDisconnect }
func (BroadcastMessage) ServerType() ServerType  { return TypeBroadcastMessage }
func (UpdateClientState) ServerType() ServerType { return TypeUpdateClientState }
