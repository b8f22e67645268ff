package server

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pinwire/pinwire/proto"
)

// PinValidator decides whether a requested pin names a real sensor.
type PinValidator func(pin string) bool

// SampleFunc produces the next reading for an accepted pin.
type SampleFunc func(pin string) float32

// Server is the reference peer for the pinwire protocol. It accepts one
// connection at a time and serves it to completion before accepting the
// next. A CONNECT is always answered with PIN_RESPONSE(1); PIN_REQUEST
// is answered only when a validator is configured, and an accepted pin
// starts a sensor feed for the rest of the connection. Everything else
// is logged and draws no reply.
type Server struct {
	Addr     string
	listener net.Listener
	logger   *slog.Logger

	validatePin  PinValidator
	source       SampleFunc
	feedInterval time.Duration

	mu        sync.RWMutex
	connected bool
	activeID  string
}

func NewServer(addr string) *Server {
	return &Server{
		Addr:         addr,
		logger:       slog.Default(),
		feedInterval: time.Second,
	}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetPinValidator enables PIN_REQUEST handling.
func (s *Server) SetPinValidator(fn PinValidator) {
	s.validatePin = fn
}

// SetSampleSource enables the sensor feed for accepted pins.
func (s *Server) SetSampleSource(fn SampleFunc) {
	s.source = fn
}

func (s *Server) SetFeedInterval(d time.Duration) {
	if d > 0 {
		s.feedInterval = d
	}
}

// Connected reports whether the listener is up.
func (s *Server) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ActiveClient returns the id of the connection currently being served,
// or the empty string.
func (s *Server) ActiveClient() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Server) Start() error {
	s.logger.Info("Starting tcp server", "addr", s.Addr)

	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = l
	s.connected = true
	s.mu.Unlock()
	defer func() {
		l.Close()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			return err // exits goroutine when listener is closed
		}
		// One client at a time; the next Accept happens only after
		// this connection is fully drained.
		s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(c net.Conn) {
	ip := c.RemoteAddr().String()
	id := generateClientId("tcp")
	s.logger.Info("Client connected", "addr", ip, "id", id)

	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()

	defer func() {
		c.Close()
		s.mu.Lock()
		if s.activeID == id {
			s.activeID = ""
		}
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "addr", ip, "id", id)
	}()

	s.serveConn(newFrameConn(c), id)
}

// Listener address after Start, useful with a ":0" bind.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down tcp server", "addr", s.Addr)
	s.mu.RLock()
	l := s.listener
	s.mu.RUnlock()
	if l != nil {
		return l.Close()
	}
	return nil
}

// messageConn abstracts a connected peer so the TCP and WebSocket
// listeners share one dispatch path.
type messageConn interface {
	ReadMessage() (proto.Message, error)
	WriteMessage(proto.Message) error
	Close() error
}

// frameConn frames messages over a raw byte stream. Writes are
// serialized because the feed goroutine and the reply path share the
// connection.
type frameConn struct {
	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex
}

func newFrameConn(c net.Conn) *frameConn {
	return &frameConn{conn: c, reader: bufio.NewReader(c)}
}

func (f *frameConn) ReadMessage() (proto.Message, error) {
	return proto.ReadMessage(f.reader)
}

func (f *frameConn) WriteMessage(msg proto.Message) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	return proto.WriteMessage(f.conn, msg)
}

func (f *frameConn) Close() error {
	return f.conn.Close()
}

// serveConn runs the per-connection message loop until the peer goes
// away. Bad frames are logged and skipped; the server never disconnects
// a peer over a decode failure.
func (s *Server) serveConn(mc messageConn, id string) {
	done := make(chan struct{})
	defer close(done)

	// At most one feed per connection; replaced when a new pin is
	// accepted.
	var feedStop chan struct{}

	for {
		msg, err := mc.ReadMessage()
		if err != nil {
			if errors.Is(err, proto.ErrFrameTooLarge) {
				s.logger.Warn("Message too large", "id", id)
				continue
			}
			var perr *proto.ProtocolError
			if errors.As(err, &perr) {
				s.logger.Warn("Protocol error", "id", id, "error", perr.Reason)
				continue
			}
			return
		}

		s.logger.Debug("Message received", "id", id, "type", msg.Type.String(), "pin", msg.Pin)

		switch msg.Type {
		case proto.Connect:
			response := proto.Message{Type: proto.PinResponse, Value: 1.0}
			if err := mc.WriteMessage(response); err != nil {
				s.logger.Warn("Failed to send connection confirmation", "id", id, "error", err)
				return
			}
			s.logger.Info("Sent connection confirmation", "id", id)

		case proto.PinRequest:
			if s.validatePin == nil {
				s.logger.Info("Pin request received, no validator configured", "id", id, "pin", msg.Pin)
				continue
			}
			feedStop = s.handlePinRequest(mc, id, msg.Pin, done, feedStop)

		default:
			s.logger.Info("Message received, no reply", "id", id, "type", msg.Type.String())
		}
	}
}

// handlePinRequest answers a PIN_REQUEST and, when the pin is accepted
// and a sample source is configured, starts the sensor feed. A new
// accepted pin replaces the running feed rather than stacking a second
// stream. Returns the stop channel of the feed now in effect.
func (s *Server) handlePinRequest(mc messageConn, id, pin string, done, prevFeed chan struct{}) chan struct{} {
	accepted := s.validatePin(pin)

	// Stop the old feed before confirming, so the peer never sees both
	// streams after the new acceptance.
	if accepted && s.source != nil && prevFeed != nil {
		close(prevFeed)
		prevFeed = nil
	}

	value := float32(0)
	if accepted {
		value = 1.0
	}
	response := proto.Message{Type: proto.PinResponse, Pin: pin, Value: value}
	if err := mc.WriteMessage(response); err != nil {
		s.logger.Warn("Failed to send pin response", "id", id, "pin", pin, "error", err)
		return prevFeed
	}

	if !accepted {
		s.logger.Info("Pin rejected", "id", id, "pin", pin)
		return prevFeed
	}

	s.logger.Info("Pin accepted", "id", id, "pin", pin)
	if s.source == nil {
		return prevFeed
	}
	stop := make(chan struct{})
	go s.feed(mc, id, pin, done, stop)
	return stop
}

// feed streams sensor readings for an accepted pin until the
// connection goes away or a newer feed replaces it.
func (s *Server) feed(mc messageConn, id, pin string, done, stop chan struct{}) {
	ticker := time.NewTicker(s.feedInterval)
	defer ticker.Stop()

	s.logger.Info("Starting sensor feed", "id", id, "pin", pin, "interval", s.feedInterval)
	for {
		select {
		case <-done:
			s.logger.Debug("Sensor feed stopped", "id", id, "pin", pin)
			return
		case <-stop:
			s.logger.Debug("Sensor feed replaced", "id", id, "pin", pin)
			return
		case <-ticker.C:
			msg := proto.Message{Type: proto.SensorData, Pin: pin, Value: s.source(pin)}
			if err := mc.WriteMessage(msg); err != nil {
				s.logger.Debug("Sensor feed write failed", "id", id, "pin", pin, "error", err)
				return
			}
		}
	}
}

func generateClientId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
