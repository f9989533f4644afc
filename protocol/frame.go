package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize 单帧负载上限
const MaxFrameSize = 64 << 10

// MaxTextSize 单条文本消息的上限：扣掉 4 字节类型和 4 字节字符串长度
const MaxTextSize = MaxFrameSize - 8

// Frame 加上 4 字节大端长度前缀，一次 Write 即可发出
func Frame(payload []byte) []byte {
	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write %d bytes: %w", len(payload), ErrFrameTooLarge)
	}
	_, err := w.Write(Frame(payload))
	return err
}

// ReadFrame 读取一帧负载；EOF 原样返回
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("read %d bytes: %w", n, ErrFrameTooLarge)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
