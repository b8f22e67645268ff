package proto

import (
	"encoding/binary"
	"math"
)

const (
	// Version is the protocol version byte. There is no negotiation;
	// any skew is fatal at decode.
	Version = 1

	// MaxMessageSize bounds the declared length of an incoming frame.
	// The codec itself does not enforce it; frame readers reject
	// oversized frames before the payload reaches Decode.
	MaxMessageSize = 1024

	// MaxStringLen is the largest pin or error string the single-byte
	// length field can describe.
	MaxStringLen = 255
)

// Encode flattens a Message into its wire payload:
//
//	version(1) | type(1) | pinLen(1) | pin | value(4, LE float32)
//	| errLen(1) | err            (error fields only for ErrorState)
//
// Encoding never fails. Pin and error strings longer than MaxStringLen
// are truncated to fit the one-byte length field.
func Encode(msg Message) []byte {
	pin := msg.Pin
	if len(pin) > MaxStringLen {
		pin = pin[:MaxStringLen]
	}

	buf := make([]byte, 0, 7+len(pin))
	buf = append(buf, Version)
	buf = append(buf, byte(msg.Type))
	buf = append(buf, byte(len(pin)))
	buf = append(buf, pin...)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(msg.Value))

	if msg.Type == ErrorState {
		errText := msg.Error
		if len(errText) > MaxStringLen {
			errText = errText[:MaxStringLen]
		}
		buf = append(buf, byte(len(errText)))
		buf = append(buf, errText...)
	}

	return buf
}

// Decode parses a wire payload back into a Message. It is a pure
// function: the same bytes always yield the same Message or the same
// *ProtocolError. An out-of-range type ordinal is not rejected here;
// dispatch layers must treat unknown types as no-ops.
func Decode(data []byte) (Message, error) {
	if len(data) < 3 {
		return Message{}, protocolErr("message too short")
	}

	offset := 0
	if data[offset] != Version {
		return Message{}, protocolErr("protocol version mismatch")
	}
	offset++

	var msg Message
	msg.Type = MessageType(data[offset])
	offset++

	pinLen := int(data[offset])
	offset++
	if offset+pinLen > len(data) {
		return Message{}, protocolErr("invalid pin length")
	}
	msg.Pin = string(data[offset : offset+pinLen])
	offset += pinLen

	if offset+4 > len(data) {
		return Message{}, protocolErr("message truncated at value")
	}
	msg.Value = math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4

	// A truncated error field is tolerated and left empty rather than
	// failing the whole message.
	if msg.Type == ErrorState && offset < len(data) {
		errLen := int(data[offset])
		offset++
		if offset+errLen <= len(data) {
			msg.Error = string(data[offset : offset+errLen])
		}
	}

	return msg, nil
}
