// Package frame implements the length-prefixed request framing used by tcpcrank.
//
// A frame is a 4-byte unsigned little-endian length followed by exactly that
// many payload bytes. The payload is opaque to this package.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the length of the prefix in bytes.
const HeaderSize = 4

// MaxPayload bounds the payload length accepted by Read.
const MaxPayload = 16 << 20

var (
	// ErrPayloadTooLarge is returned when a payload cannot be described by the prefix
	// or exceeds MaxPayload on read.
	ErrPayloadTooLarge = errors.New("frame payload too large")
	// ErrShortWrite is returned when a writer reports progress of zero bytes without an error.
	ErrShortWrite = errors.New("frame short write")
)

// Encode returns the prefix followed by the payload in a single buffer.
func Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Write encodes payload and writes the whole frame to w, retrying short writes
// until every byte is delivered or w fails. It returns the number of bytes written.
func Write(w io.Writer, payload []byte) (int, error) {
	buf, err := Encode(payload)
	if err != nil {
		return 0, err
	}
	return writeFull(w, buf)
}

func writeFull(w io.Writer, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, ErrShortWrite
		}
	}
	return written, nil
}

// Read reads one complete frame from r. The prefix is read in full before any
// payload byte is consumed.
func Read(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
