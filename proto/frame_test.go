package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Message{Type: SensorData, Value: 24.1}

	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFrameLengthPrefixIsLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	payload := Encode(Message{Type: Connect})
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	header := buf.Bytes()[:4]
	if binary.LittleEndian.Uint32(header) != uint32(len(payload)) {
		t.Errorf("header %v does not declare payload length %d", header, len(payload))
	}
}

// oneByteReader forces ReadFrame to cope with maximally fragmented reads.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestReadFrameHandlesPartialReads(t *testing.T) {
	var buf bytes.Buffer
	want := Message{Type: PinResponse, Pin: "42", Value: 1}
	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	got, err := ReadMessage(oneByteReader{&buf})
	if err != nil {
		t.Fatalf("ReadMessage over fragmented stream failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadFrameRejectsOversizedAndResynchronizes(t *testing.T) {
	var buf bytes.Buffer

	// An oversized frame followed by a valid one.
	junk := make([]byte, MaxMessageSize+1)
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(junk)))
	buf.Write(header[:])
	buf.Write(junk)

	want := Message{Type: SensorData, Value: 23.5}
	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("stream did not resynchronize after oversized frame: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadFrameRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	_, err := ReadFrame(&buf)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], 10)
	buf.Write(header[:])
	buf.Write([]byte{1, 2, 3}) // 7 bytes short

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error on truncated stream")
	}
}
