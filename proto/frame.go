package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned by ReadFrame when the declared frame
// length exceeds MaxMessageSize. The oversized payload has already been
// drained from the stream, so the caller may keep reading frames.
var ErrFrameTooLarge = errors.New("proto: frame exceeds maximum message size")

// WriteFrame writes one length-prefixed frame: a 4-byte little-endian
// payload length followed by the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r, accumulating partial reads
// until the full payload is available. Oversized and empty frames are
// rejected; an oversized payload is discarded so that frame
// synchronization survives the rejection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxMessageSize {
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return nil, fmt.Errorf("discard oversized frame: %w", err)
		}
		return nil, ErrFrameTooLarge
	}
	if size == 0 {
		return nil, protocolErr("empty frame")
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteMessage encodes msg and writes it as a single frame.
func WriteMessage(w io.Writer, msg Message) error {
	return WriteFrame(w, Encode(msg))
}

// ReadMessage reads one frame and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(payload)
}
