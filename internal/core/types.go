// Package core defines the bus event and annotation types shared by
// sources, the decoder and sinks, plus sentinel errors.
package core

import (
	"fmt"
	"time"
)

// EventKind identifies the kind of a low-level bus event.
type EventKind uint8

const (
	EventStart EventKind = iota + 1
	EventAddress
	EventData
	EventStop
)

// String returns the lowercase name used by capture exports.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventAddress:
		return "address"
	case EventData:
		return "data"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseEventKind maps an export name ("start", "address", "data", "stop") to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "start":
		return EventStart, nil
	case "address":
		return EventAddress, nil
	case "data":
		return EventData, nil
	case "stop":
		return EventStop, nil
	default:
		return 0, fmt.Errorf("%w: unknown event type %q", ErrMalformedRecord, s)
	}
}

// BusEvent is one event from the upstream I2C bus analyzer.
// Start and End are offsets from the capture origin and are carried through unmodified.
type BusEvent struct {
	Kind  EventKind
	Start time.Duration
	End   time.Duration

	// Address phase only
	Address uint16 // 7-bit (or 10-bit) device address, without the R/W bit
	Read    bool

	// Data phase only
	Data byte
}

// StartEvent builds a start condition event.
func StartEvent(start, end time.Duration) BusEvent {
	return BusEvent{Kind: EventStart, Start: start, End: end}
}

// AddressEvent builds an address phase event.
func AddressEvent(start, end time.Duration, addr uint16, read bool) BusEvent {
	return BusEvent{Kind: EventAddress, Start: start, End: end, Address: addr, Read: read}
}

// DataEvent builds a data byte event.
func DataEvent(start, end time.Duration, b byte) BusEvent {
	return BusEvent{Kind: EventData, Start: start, End: end, Data: b}
}

// StopEvent builds a stop condition event.
func StopEvent(start, end time.Duration) BusEvent {
	return BusEvent{Kind: EventStop, Start: start, End: end}
}
