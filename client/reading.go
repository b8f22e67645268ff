package client

import "fmt"

// ReadingKind distinguishes control conditions from literal sensor
// values in the data callback, replacing the old magic-float convention
// (-1.0 for errors, 1000.0 for accepted pins) that collided with
// legitimate readings.
type ReadingKind int

const (
	// Data carries a verbatim sensor value.
	Data ReadingKind = iota
	// Accepted means the server confirmed the requested pin.
	Accepted
	// Rejected means the server refused the requested pin.
	Rejected
	// Fault reports a server-side error condition.
	Fault
)

func (k ReadingKind) String() string {
	switch k {
	case Data:
		return "data"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Fault:
		return "fault"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Reading is the tagged result delivered to the data callback. Value is
// meaningful for Data (the sensor reading) and Accepted/Rejected (the
// raw response flag); Err is set only for Fault.
type Reading struct {
	Kind  ReadingKind
	Value float32
	Err   string
}
