package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pinwire/pinwire/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// WSListener serves the same protocol over WebSocket. Each binary
// WebSocket message carries one payload; the 4-byte length prefix of
// the raw TCP framing is redundant there and omitted.
type WSListener struct {
	Addr   string
	server *http.Server
	logger *slog.Logger
	pw     *Server

	mu        sync.RWMutex
	connected bool
}

// NewWSListener shares message handling (validator, feed) with the
// given Server.
func NewWSListener(addr string, pw *Server) *WSListener {
	return &WSListener{Addr: addr, pw: pw, logger: slog.Default()}
}

func (t *WSListener) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

func (t *WSListener) Start() error {
	t.logger.Info("Starting WebSocket listener", "addr", t.Addr)

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleWebSocket)

	t.server = &http.Server{
		Addr:    t.Addr,
		Handler: mux,
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	err := t.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *WSListener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	id := generateClientId("ws")
	t.logger.Info("Client connected", "addr", r.RemoteAddr, "id", id)
	defer func() {
		conn.Close()
		t.logger.Info("Client disconnected", "addr", r.RemoteAddr, "id", id)
	}()

	t.pw.serveConn(&wsConn{conn: conn}, id)
}

func (t *WSListener) Shutdown() error {
	t.logger.Info("Shutting down WebSocket listener", "addr", t.Addr)
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

func (t *WSListener) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) ReadMessage() (proto.Message, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return proto.Message{}, err
	}
	if len(payload) > proto.MaxMessageSize {
		return proto.Message{}, proto.ErrFrameTooLarge
	}
	return proto.Decode(payload)
}

func (c *wsConn) WriteMessage(msg proto.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, proto.Encode(msg))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
