package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pinwire/pinwire/proto"
)

// ConnState tracks where a connection is in its lifecycle.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	HandshakePending
	Established
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case HandshakePending:
		return "handshake_pending"
	case Established:
		return "established"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrNotEstablished is returned by SendPinRequest before the handshake
// has completed.
var ErrNotEstablished = errors.New("client: connection not established")

// Client is the per-connection state machine. It sends CONNECT as soon
// as the transport comes up and treats the first well-formed inbound
// frame as the handshake acknowledgment, whatever its type. That quirk
// is load-bearing: existing servers answer CONNECT with a plain
// PIN_RESPONSE rather than a dedicated ack type.
//
// All state transitions happen on the single read-loop goroutine or
// under the client mutex, so readings reach the callback in receipt
// order with no internal reordering.
type Client struct {
	addr      string
	transport Transport
	logger    *slog.Logger

	mu            sync.Mutex
	state         ConnState
	handshakeDone chan struct{}
	loopDone      chan struct{}
	onReading     func(Reading)

	// Whether a decode failure tears down the connection. Defaults to
	// true: after a bad frame there is no guarantee the stream is still
	// aligned on a frame boundary.
	disconnectOnProtoErr bool
}

func NewClient(addr string, t Transport) *Client {
	return &Client{
		addr:                 addr,
		transport:            t,
		logger:               slog.Default(),
		state:                Disconnected,
		disconnectOnProtoErr: true,
	}
}

func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetDisconnectOnProtocolError controls whether decode failures tear
// down the connection. Oversized frames are always discarded without
// disconnecting, and a version mismatch always disconnects regardless
// of this setting.
func (c *Client) SetDisconnectOnProtocolError(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectOnProtoErr = v
}

// OnReading registers the data callback. It is invoked from the read
// loop goroutine, one reading at a time.
func (c *Client) OnReading(fn func(Reading)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReading = fn
}

// Connect dials the transport and starts the handshake. An existing
// connection is torn down first.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		c.logger.Info("Already connected, disconnecting first", "addr", c.addr)
		c.Disconnect()
		c.mu.Lock()
	}
	prev := c.loopDone
	c.mu.Unlock()

	// The previous read loop may still be inside transport.Read; it
	// must exit before the transport reconnects underneath it.
	if prev != nil {
		<-prev
	}

	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	c.logger.Info("Attempting connection", "addr", c.addr)
	if err := c.transport.Connect(c.addr); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}

	if err := c.transport.Send(proto.Message{Type: proto.Connect}); err != nil {
		c.transport.Close()
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return fmt.Errorf("send handshake: %w", err)
	}
	c.logger.Debug("Handshake sent", "addr", c.addr)

	c.mu.Lock()
	c.state = HandshakePending
	c.handshakeDone = make(chan struct{})
	c.loopDone = make(chan struct{})
	done := c.handshakeDone
	loopDone := c.loopDone
	c.mu.Unlock()

	go c.readLoop(done, loopDone)
	return nil
}

// readLoop owns all inbound state transitions for one connection. The
// handshake channel identifies the connection generation so a stale
// loop cannot clobber the state of a newer one after a reconnect.
// loopDone is closed on return; Connect waits on it before redialing.
func (c *Client) readLoop(done, loopDone chan struct{}) {
	defer close(loopDone)
	for {
		msg, err := c.transport.Read()
		if err != nil {
			if errors.Is(err, proto.ErrFrameTooLarge) {
				c.logger.Warn("Discarded oversized frame", "addr", c.addr)
				continue
			}
			var perr *proto.ProtocolError
			if errors.As(err, &perr) {
				c.logger.Warn("Protocol error", "addr", c.addr, "error", perr.Reason)
				c.mu.Lock()
				drop := c.disconnectOnProtoErr || perr.Reason == "protocol version mismatch"
				c.mu.Unlock()
				if !drop {
					continue
				}
				c.Disconnect()
				return
			}
			c.logger.Info("Connection lost", "addr", c.addr, "error", err)
			c.mu.Lock()
			if c.handshakeDone == done {
				c.state = Disconnected
			}
			c.mu.Unlock()
			return
		}
		c.handleMessage(done, msg)
	}
}

func (c *Client) handleMessage(done chan struct{}, msg proto.Message) {
	c.mu.Lock()
	if c.handshakeDone != done {
		c.mu.Unlock()
		return
	}
	if c.state == HandshakePending {
		// First inbound frame acknowledges the handshake. Its payload
		// is consumed here and never reaches the callback.
		c.state = Established
		close(c.handshakeDone)
		cb := c.onReading
		c.mu.Unlock()
		c.logger.Info("Handshake complete", "addr", c.addr, "ack_type", msg.Type.String())
		if msg.Type == proto.ErrorState {
			c.logger.Warn("Error received during handshake", "error", msg.Error)
			if cb != nil {
				cb(Reading{Kind: Fault, Err: msg.Error})
			}
		}
		return
	}
	cb := c.onReading
	c.mu.Unlock()

	c.logger.Debug("Message received", "type", msg.Type.String(), "pin", msg.Pin)

	switch msg.Type {
	case proto.PinResponse:
		if msg.Value > 0 {
			c.logger.Info("Pin accepted", "pin", msg.Pin)
			if cb != nil {
				cb(Reading{Kind: Accepted, Value: msg.Value})
			}
		} else {
			c.logger.Info("Pin rejected", "pin", msg.Pin)
			if cb != nil {
				cb(Reading{Kind: Rejected, Value: msg.Value})
			}
		}

	case proto.SensorData:
		if cb != nil {
			cb(Reading{Kind: Data, Value: msg.Value})
		}

	case proto.ErrorState:
		c.logger.Warn("Error received", "error", msg.Error)
		if cb != nil {
			cb(Reading{Kind: Fault, Err: msg.Error})
		}

	default:
		c.logger.Warn("Unhandled message type", "type", msg.Type.String())
	}
}

// SendPinRequest asks the server for access to a sensor channel. It is
// only valid once the handshake has completed.
func (c *Client) SendPinRequest(pin string) error {
	c.mu.Lock()
	established := c.state == Established
	c.mu.Unlock()
	if !established {
		c.logger.Warn("Cannot send pin request - not fully connected", "pin", pin)
		return ErrNotEstablished
	}

	c.logger.Info("Sending pin request", "pin", pin)
	if err := c.transport.Send(proto.Message{Type: proto.PinRequest, Pin: pin}); err != nil {
		return fmt.Errorf("send pin request: %w", err)
	}
	return nil
}

// WaitForConnection blocks until the handshake completes or the timeout
// elapses, and reports whether the connection is established.
func (c *Client) WaitForConnection(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.WaitForConnectionCtx(ctx)
}

// WaitForConnectionCtx is WaitForConnection with caller-controlled
// cancellation.
func (c *Client) WaitForConnectionCtx(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == Established {
		c.mu.Unlock()
		return true
	}
	done := c.handshakeDone
	c.mu.Unlock()

	if done == nil {
		return false
	}

	select {
	case <-done:
		return true
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for handshake", "addr", c.addr)
		return false
	}
}

// IsConnected reports whether the connection is fully established,
// handshake included.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Established
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disconnect closes the transport. Calling it while already
// disconnected is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		c.logger.Debug("Transport close", "error", err)
	}
	c.logger.Info("Disconnected", "addr", c.addr)
}
