package proto

import "fmt"

// MessageType tags a Message on the wire. The ordinals are part of the
// protocol and must match across peers.
type MessageType uint8

const (
	Connect     MessageType = iota // initial connection request
	PinRequest                     // client requests access to a sensor
	PinResponse                    // server confirms or rejects
	SensorData                     // server sends a sensor reading
	ErrorState                     // error condition
)

func (t MessageType) String() string {
	switch t {
	case Connect:
		return "connect"
	case PinRequest:
		return "pin_request"
	case PinResponse:
		return "pin_response"
	case SensorData:
		return "sensor_data"
	case ErrorState:
		return "error_state"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Message is the unit of exchange between a pinwire client and server.
// Pin identifies a sensor channel and is meaningful on Connect,
// PinRequest and PinResponse. Value carries the sensor reading for
// SensorData and the accept/reject flag for PinResponse. Error is only
// encoded when Type is ErrorState.
type Message struct {
	Type  MessageType
	Pin   string
	Value float32
	Error string
}

// ProtocolError reports a malformed or incompatible payload.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "proto: " + e.Reason
}

func protocolErr(reason string) error {
	return &ProtocolError{Reason: reason}
}
