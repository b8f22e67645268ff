package client

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pinwire/pinwire/proto"
)

// pipeTransport drives a Client over one end of a net.Pipe, standing in
// for a dialed TCP connection.
type pipeTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newPipeTransport(conn net.Conn) *pipeTransport {
	return &pipeTransport{conn: conn, reader: bufio.NewReader(conn)}
}

func (p *pipeTransport) Connect(addr string) error { return nil }

func (p *pipeTransport) Send(msg proto.Message) error {
	return proto.WriteMessage(p.conn, msg)
}

func (p *pipeTransport) Read() (proto.Message, error) {
	return proto.ReadMessage(p.reader)
}

func (p *pipeTransport) Close() error {
	return p.conn.Close()
}

// readingRecorder collects callback invocations in arrival order.
type readingRecorder struct {
	mu       sync.Mutex
	readings []Reading
	notify   chan struct{}
}

func newReadingRecorder() *readingRecorder {
	return &readingRecorder{notify: make(chan struct{}, 16)}
}

func (r *readingRecorder) record(reading Reading) {
	r.mu.Lock()
	r.readings = append(r.readings, reading)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *readingRecorder) wait(t *testing.T, n int) []Reading {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		count := len(r.readings)
		r.mu.Unlock()
		if count >= n {
			break
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d readings, have %d", n, count)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Reading, len(r.readings))
	copy(result, r.readings)
	return result
}

// startTestClient wires a Client to a fake server conn. The returned
// server conn must be serviced concurrently because net.Pipe writes are
// synchronous.
func startTestClient(t *testing.T) (*Client, net.Conn, *readingRecorder) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	c := NewClient("pipe", newPipeTransport(clientConn))
	rec := newReadingRecorder()
	c.OnReading(rec.record)
	return c, serverConn, rec
}

// expectMessage reads one frame from the fake server side.
func expectMessage(t *testing.T, conn net.Conn, want proto.MessageType) proto.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := proto.ReadMessage(conn)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if msg.Type != want {
		t.Fatalf("server expected %s, got %s", want, msg.Type)
	}
	return msg
}

func completeHandshake(t *testing.T, c *Client, serverConn net.Conn) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		expectMessage(t, serverConn, proto.Connect)
		if err := proto.WriteMessage(serverConn, proto.Message{Type: proto.PinResponse, Value: 1.0}); err != nil {
			t.Errorf("server write failed: %v", err)
		}
	}()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-done

	if !c.WaitForConnection(2 * time.Second) {
		t.Fatal("handshake did not complete")
	}
}

func TestHandshakeCompletesOnFirstFrame(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	if !c.IsConnected() {
		t.Error("expected IsConnected after handshake")
	}
	if c.State() != Established {
		t.Errorf("expected Established state, got %s", c.State())
	}

	// The PIN_RESPONSE that acknowledged the handshake is consumed, not
	// delivered as an Accepted reading.
	go proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: 23.5})
	readings := rec.wait(t, 1)
	if len(readings) != 1 || readings[0].Kind != Data || readings[0].Value != 23.5 {
		t.Errorf("unexpected readings after handshake: %+v", readings)
	}
}

func TestHandshakeCompletesExactlyOnce(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	// A second PIN_RESPONSE must be dispatched normally, not swallowed
	// by handshake logic.
	go proto.WriteMessage(serverConn, proto.Message{Type: proto.PinResponse, Value: 1.0})
	readings := rec.wait(t, 1)
	if readings[0].Kind != Accepted {
		t.Errorf("expected Accepted reading, got %+v", readings[0])
	}
}

func TestPinRequestSuccessScenario(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		msg := expectMessage(t, serverConn, proto.PinRequest)
		if msg.Pin != "42" {
			t.Errorf("expected pin 42, got %q", msg.Pin)
		}
		proto.WriteMessage(serverConn, proto.Message{Type: proto.PinResponse, Pin: msg.Pin, Value: 1.0})
	}()

	if err := c.SendPinRequest("42"); err != nil {
		t.Fatalf("SendPinRequest failed: %v", err)
	}
	<-serverDone

	readings := rec.wait(t, 1)
	if readings[0].Kind != Accepted {
		t.Errorf("expected Accepted, got %+v", readings[0])
	}
}

func TestPinRequestRejectionScenario(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	go proto.WriteMessage(serverConn, proto.Message{Type: proto.PinResponse, Value: 0.0})

	readings := rec.wait(t, 1)
	if readings[0].Kind != Rejected {
		t.Errorf("expected Rejected, got %+v", readings[0])
	}
}

func TestSensorStreamArrivalOrder(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	values := []float32{23.5, 24.1, 24.0}
	go func() {
		for _, v := range values {
			proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: v})
		}
	}()

	readings := rec.wait(t, len(values))
	for i, v := range values {
		if readings[i].Kind != Data || readings[i].Value != v {
			t.Errorf("reading %d: got %+v, want Data %v", i, readings[i], v)
		}
	}
}

func TestErrorStateDeliversFault(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	go proto.WriteMessage(serverConn, proto.Message{Type: proto.ErrorState, Error: "sensor offline"})

	readings := rec.wait(t, 1)
	if readings[0].Kind != Fault || readings[0].Err != "sensor offline" {
		t.Errorf("expected Fault reading, got %+v", readings[0])
	}
}

func TestUnknownTypeIsIgnored(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	go func() {
		payload := proto.Encode(proto.Message{Type: proto.SensorData, Value: 7})
		payload[1] = 99
		proto.WriteFrame(serverConn, payload)
		proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: 25.0})
	}()

	readings := rec.wait(t, 1)
	if readings[0].Kind != Data || readings[0].Value != 25.0 {
		t.Errorf("expected the frame after the unknown type, got %+v", readings[0])
	}
}

func TestSendPinRequestBeforeEstablished(t *testing.T) {
	c, _, _ := startTestClient(t)

	if err := c.SendPinRequest("42"); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("expected ErrNotEstablished, got %v", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, serverConn, _ := startTestClient(t)
	completeHandshake(t, c, serverConn)

	c.Disconnect()
	c.Disconnect() // no-op

	if c.IsConnected() {
		t.Error("expected disconnected state")
	}
	if err := c.SendPinRequest("42"); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("expected ErrNotEstablished after disconnect, got %v", err)
	}
}

func TestDecodeFailureDisconnects(t *testing.T) {
	c, serverConn, _ := startTestClient(t)
	completeHandshake(t, c, serverConn)

	// Valid frame, garbage payload version.
	go proto.WriteFrame(serverConn, []byte{9, 0, 0, 0, 0, 0, 0})

	deadline := time.Now().Add(2 * time.Second)
	for c.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client did not disconnect after decode failure")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOversizedFrameDoesNotDisconnect(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	completeHandshake(t, c, serverConn)

	go func() {
		junk := make([]byte, proto.MaxMessageSize+1)
		proto.WriteFrame(serverConn, junk)
		proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: 24.1})
	}()

	readings := rec.wait(t, 1)
	if readings[0].Kind != Data || readings[0].Value != 24.1 {
		t.Errorf("expected reading after oversized frame, got %+v", readings[0])
	}
	if !c.IsConnected() {
		t.Error("oversized frame should not disconnect")
	}
}

func TestWaitForConnectionTimeout(t *testing.T) {
	c, serverConn, _ := startTestClient(t)

	// Server drains the CONNECT but never replies.
	go func() {
		serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		msg, err := proto.ReadMessage(serverConn)
		if err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		if msg.Type != proto.Connect {
			t.Errorf("server expected %s, got %s", proto.Connect, msg.Type)
		}
	}()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if c.WaitForConnection(100 * time.Millisecond) {
		t.Error("expected handshake wait to time out")
	}
	if c.IsConnected() {
		t.Error("expected not connected")
	}
}

func TestVersionMismatchDisconnectsDespiteOptOut(t *testing.T) {
	c, serverConn, _ := startTestClient(t)
	c.SetDisconnectOnProtocolError(false)
	completeHandshake(t, c, serverConn)

	// Well-framed payload carrying the wrong protocol version byte.
	go func() {
		payload := proto.Encode(proto.Message{Type: proto.SensorData, Value: 7})
		payload[0] = proto.Version + 1
		proto.WriteFrame(serverConn, payload)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client did not disconnect on version mismatch")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecodeFailureSkippedWithOptOut(t *testing.T) {
	c, serverConn, rec := startTestClient(t)
	c.SetDisconnectOnProtocolError(false)
	completeHandshake(t, c, serverConn)

	go func() {
		// Right version, payload cut off before the value.
		proto.WriteFrame(serverConn, []byte{proto.Version, 3, 0})
		proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: 25.0})
	}()

	readings := rec.wait(t, 1)
	if readings[0].Kind != Data || readings[0].Value != 25.0 {
		t.Errorf("expected the frame after the bad one, got %+v", readings[0])
	}
	if !c.IsConnected() {
		t.Error("expected connection to survive the bad frame")
	}
}

// redialTransport recreates its pipe on every Connect, serving each
// pipe with a fresh fake server, and records whether a dial ever
// overlapped an in-flight Read.
type redialTransport struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	reading atomic.Int32
	overlap atomic.Bool
}

func (r *redialTransport) Connect(addr string) error {
	if r.reading.Load() != 0 {
		r.overlap.Store(true)
	}
	clientConn, serverConn := net.Pipe()
	r.mu.Lock()
	r.conn = clientConn
	r.reader = bufio.NewReader(clientConn)
	r.mu.Unlock()

	// Fake server: drain client writes and flood sensor data until the
	// pipe closes.
	go io.Copy(io.Discard, serverConn)
	go func() {
		for {
			if err := proto.WriteMessage(serverConn, proto.Message{Type: proto.SensorData, Value: 1}); err != nil {
				return
			}
		}
	}()
	return nil
}

func (r *redialTransport) Send(msg proto.Message) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	return proto.WriteMessage(conn, msg)
}

func (r *redialTransport) Read() (proto.Message, error) {
	r.reading.Add(1)
	defer r.reading.Add(-1)
	r.mu.Lock()
	reader := r.reader
	r.mu.Unlock()
	return proto.ReadMessage(reader)
}

func (r *redialTransport) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func TestReconnectWaitsForPriorReadLoop(t *testing.T) {
	tr := &redialTransport{}
	c := NewClient("pipe", tr)
	c.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 200; i++ {
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
	}
	c.Disconnect()

	if tr.overlap.Load() {
		t.Fatal("transport redialed while a read was still in flight")
	}
}

func TestWaitForConnectionWithoutConnect(t *testing.T) {
	c, _, _ := startTestClient(t)
	if c.WaitForConnection(50 * time.Millisecond) {
		t.Error("expected false before Connect")
	}
}
