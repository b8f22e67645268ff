package client

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pinwire/pinwire/proto"
)

// WebSocketTransport carries protocol payloads as binary WebSocket
// messages. The WebSocket layer already frames messages, so payloads
// travel without the 4-byte length prefix used on raw TCP.
type WebSocketTransport struct {
	conn *websocket.Conn
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

func (t *WebSocketTransport) Connect(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	// If no scheme is provided, assume ws://
	if u.Scheme == "" {
		u.Scheme = "ws"
	}

	// Convert tcp addresses to WebSocket URLs
	if u.Scheme == "tcp" {
		u.Scheme = "ws"
		u.Path = "/"
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}

	t.conn = conn
	return nil
}

func (t *WebSocketTransport) Send(msg proto.Message) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}

	err := t.conn.WriteMessage(websocket.BinaryMessage, proto.Encode(msg))
	if err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}

	slog.Debug("Sent WebSocket message", "type", msg.Type.String(), "pin", msg.Pin)
	return nil
}

func (t *WebSocketTransport) Read() (proto.Message, error) {
	if t.conn == nil {
		return proto.Message{}, fmt.Errorf("transport is not connected")
	}

	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			return proto.Message{}, fmt.Errorf("WebSocket connection error: %w", err)
		}
		return proto.Message{}, fmt.Errorf("connection closed: %w", err)
	}

	if len(payload) > proto.MaxMessageSize {
		return proto.Message{}, proto.ErrFrameTooLarge
	}

	return proto.Decode(payload)
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	// Send close message
	err := t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		// Log error but don't return it - we still want to close the connection
		slog.Warn("Failed to send close message", "error", err)
	}

	return t.conn.Close()
}
