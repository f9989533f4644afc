package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestPositionUpdateLayout(t *testing.T) {
	got := EncodeClient(PositionUpdate{PlayerID: 7, X: 1.5, Y: -2})
	want := []byte{
		0, 0, 0, 1, // type
		0, 0, 0, 7, // id
		0x3f, 0xc0, 0, 0, // 1.5
		0xc0, 0, 0, 0, // -2
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected bytes\n got %x\nwant %x", got, want)
	}
}

func TestChatStringIsLengthPrefixed(t *testing.T) {
	got := EncodeClient(ChatMessage{Text: "hé"})
	if n := binary.BigEndian.Uint32(got[4:8]); n != 3 {
		t.Fatalf("expected 3 byte string, got %d", n)
	}
	m, err := DecodeClient(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m != (ChatMessage{Text: "hé"}) {
		t.Fatalf("unexpected message %#v", m)
	}
}

func TestUpdateClientStateCount(t *testing.T) {
	in := UpdateClientState{Players: []PlayerState{{ID: 0, X: 2, Y: 2}, {ID: 3, X: 4.25, Y: 9}}}
	b := EncodeServer(in)
	if n := binary.BigEndian.Uint32(b[4:8]); n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
	if len(b) != 8+2*12 {
		t.Fatalf("unexpected length %d", len(b))
	}
	out, err := DecodeServer(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("got %#v want %#v", out, in)
	}
}

func TestInitialStateCarriesCounter(t *testing.T) {
	in := InitialState{IDCounter: 5, Players: []PlayerState{{ID: 4, X: 1, Y: 1}}}
	out, err := DecodeServer(EncodeServer(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("got %#v want %#v", out, in)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := DecodeClient([]byte{0, 0, 0, 42}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := DecodeServer([]byte{0xff, 0xff, 0xff, 0xff}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	cases := [][]byte{
		{},
		{0, 0},
		{0, 0, 0, 1, 0, 0, 0, 7},
		{0, 0, 0, 0, 0, 0, 0, 9, 'a'},
	}
	for _, b := range cases {
		if _, err := DecodeClient(b); !errors.Is(err, ErrShortPayload) {
			t.Fatalf("%x: expected ErrShortPayload, got %v", b, err)
		}
	}
	// 声称有 1000 个玩家但没有数据
	huge := []byte{0, 0, 0, 6, 0, 0, 0x03, 0xe8}
	if _, err := DecodeServer(huge); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestFrameReadWrite(t *testing.T) {
	var buf bytes.Buffer
	msgs := [][]byte{EncodeServer(PlayerDisconnect{ID: 2}), EncodeServer(BroadcastMessage{Text: "hi"})}
	for _, m := range msgs {
		if err := WriteFrame(&buf, m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range msgs {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %x want %x", i, got, want)
		}
	}
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	if err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	r := bytes.NewReader([]byte{0, 2, 0, 0})
	if _, err := ReadFrame(r); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
