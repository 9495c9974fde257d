package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// headerSize is the size of the length prefix
	headerSize = 4
	// MaxFrameSize bounds the payload a peer may announce
	MaxFrameSize = 64 * 1024 * 1024
)

// writeFrame writes a frame to the connection with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, data []byte) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
func readFrame(conn net.Conn, buf []byte) ([]byte, error) {
	var header [headerSize]byte

	// Read header
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if contentLength > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, MaxFrameSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	// Read data, io.ReadFull loops until the declared length is accumulated
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return nil, err
	}

	return buf[:contentLength], nil
}
