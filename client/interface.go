package client

import "github.com/pinwire/pinwire/proto"

// Transport carries framed protocol messages to and from a pinwire
// server. Read failures that are *proto.ProtocolError values or
// proto.ErrFrameTooLarge describe a bad frame on an otherwise healthy
// connection; any other error means the transport itself is gone.
type Transport interface {
	Connect(addr string) error
	Send(msg proto.Message) error
	Read() (proto.Message, error) // for one-at-a-time processing
	Close() error
}
