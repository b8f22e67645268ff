package client

import (
	"bufio"
	"fmt"
	"net"

	"github.com/pinwire/pinwire/proto"
)

type TCPTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// NewConnTransport wraps an already-established connection. Useful for
// in-memory pipes and tests.
func NewConnTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn, reader: bufio.NewReader(conn)}
}

func (t *TCPTransport) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *TCPTransport) Send(msg proto.Message) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}
	return proto.WriteMessage(t.conn, msg)
}

func (t *TCPTransport) Read() (proto.Message, error) {
	if t.reader == nil {
		return proto.Message{}, fmt.Errorf("transport is not connected")
	}
	return proto.ReadMessage(t.reader)
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
