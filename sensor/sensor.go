package sensor

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pinwire/pinwire/client"
)

const (
	// MaxHistory bounds the per-sensor reading history.
	MaxHistory = 100

	// Test-data generation range.
	MinValue = 0.0
	MaxValue = 100.0
)

// Link is the connection a Sensor drives. *client.Client satisfies it.
type Link interface {
	Connect() error
	Disconnect()
	WaitForConnection(timeout time.Duration) bool
	SendPinRequest(pin string) error
	OnReading(func(client.Reading))
}

// Sensor tracks the live value and bounded history of one pin. Values
// arrive through the link's reading callback; control readings flip the
// connected flag instead of polluting the history.
type Sensor struct {
	pin    string
	link   Link
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	lastValue float32
	history   []float32
}

func New(pin string, link Link) *Sensor {
	s := &Sensor{pin: pin, link: link, logger: slog.Default()}
	link.OnReading(s.handleReading)
	return s
}

func (s *Sensor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Sensor) Pin() string {
	return s.pin
}

// Connect establishes the link, waits for the handshake and registers
// the pin. The sensor is connected once the server accepts the pin.
func (s *Sensor) Connect(timeout time.Duration) error {
	if err := s.link.Connect(); err != nil {
		return fmt.Errorf("sensor %s: %w", s.pin, err)
	}
	if !s.link.WaitForConnection(timeout) {
		s.link.Disconnect()
		return fmt.Errorf("sensor %s: handshake timed out", s.pin)
	}
	if err := s.link.SendPinRequest(s.pin); err != nil {
		s.link.Disconnect()
		return fmt.Errorf("sensor %s: %w", s.pin, err)
	}
	return nil
}

func (s *Sensor) Disconnect() {
	s.link.Disconnect()
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *Sensor) handleReading(r client.Reading) {
	switch r.Kind {
	case client.Data:
		s.UpdateValue(r.Value)

	case client.Accepted:
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.logger.Info("Sensor connection confirmed", "pin", s.pin)

	case client.Rejected:
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.logger.Warn("Pin rejected", "pin", s.pin)

	case client.Fault:
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.logger.Warn("Sensor fault", "pin", s.pin, "error", r.Err)
	}
}

// UpdateValue stores a reading, dropping the oldest history entry once
// MaxHistory is reached.
func (s *Sensor) UpdateValue(value float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastValue = value
	if len(s.history) >= MaxHistory {
		s.history = s.history[1:]
	}
	s.history = append(s.history, value)
}

// ClearValue resets the live value and connected flag. History is kept.
func (s *Sensor) ClearValue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastValue = 0
	s.connected = false
}

func (s *Sensor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sensor) LastValue() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastValue
}

// History returns a copy of the reading history, oldest first.
func (s *Sensor) History() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]float32, len(s.history))
	copy(history, s.history)
	return history
}

// GenerateTestData records a random reading, for running the host
// application without a live server.
func (s *Sensor) GenerateTestData() {
	s.UpdateValue(MinValue + rand.Float32()*(MaxValue-MinValue))
}
