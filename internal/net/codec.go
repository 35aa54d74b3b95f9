package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrame bounds a single frame payload. Full dumps of large crowds are
// compressed well below this.
const MaxFrame = 16 << 20

// ReadFrame reads one debug protocol frame from r.
// Wire format: [4 bytes LE: payload length][payload].
// Returns the payload bytes (without the length header).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	payloadLen := int(binary.LittleEndian.Uint32(header[:]))
	if payloadLen <= 0 || payloadLen > MaxFrame {
		return nil, fmt.Errorf("invalid frame length: %d", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return payload, nil
}

// WriteFrame writes one debug protocol frame to w.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) == 0 || len(data) > MaxFrame {
		return fmt.Errorf("invalid frame length: %d", len(data))
	}
	buf := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
