// Package decoder assembles I2C bus events into SHT sensor transactions and
// interprets their payloads.
//
// The decoder processes one event at a time and never fails: malformed or
// out-of-order input either resynchronizes the decoder or is discarded at the
// next stop condition.
package decoder

import "firestige.xyz/shtdecode/internal/core"

// DefaultAddress is the 7-bit address of the SHTC3 sensor.
const DefaultAddress uint16 = 0x70

// Config contains decoder configuration.
type Config struct {
	Address uint16 // Target device address; 0 means DefaultAddress
}

// Stats are cumulative decoder counters.
type Stats struct {
	Events    uint64 // Events fed to the decoder
	Emitted   uint64 // Annotations produced
	Dropped   uint64 // Transactions closed without addressing the target device
	Resyncs   uint64 // Address or data events seen without a preceding start
	CRCErrors uint64 // Measurements rejected by CRC
	Ignored   uint64 // Events of unknown kind
}

type state uint8

const (
	stateIdle     state = iota // no open transaction
	stateUnsynced              // opened by a stray data event, never addressed
	stateFramed                // opened by start or address
)

// transaction accumulates one start..stop span.
type transaction struct {
	ann      core.Annotation
	bytes    []byte
	targeted bool
	read     bool
}

// Decoder is a single-owner transaction state machine. It is not safe for
// concurrent use.
type Decoder struct {
	address uint16
	state   state
	tx      transaction
	stats   Stats
}

// New creates a decoder.
func New(cfg Config) *Decoder {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	return &Decoder{address: cfg.Address}
}

// Address returns the target device address.
func (d *Decoder) Address() uint16 {
	return d.address
}

// Decode feeds one bus event. It returns an annotation when ev closes a
// transaction addressed to the target device.
func (d *Decoder) Decode(ev core.BusEvent) (core.Annotation, bool) {
	d.stats.Events++

	switch ev.Kind {
	case core.EventStart:
		d.open(ev, stateFramed)

	case core.EventAddress:
		if d.state != stateFramed {
			d.stats.Resyncs++
			d.open(ev, stateFramed)
		}
		// A repeated start keeps the bytes gathered so far.
		d.tx.read = ev.Read
		d.tx.targeted = ev.Address == d.address

	case core.EventData:
		if d.state == stateIdle {
			d.stats.Resyncs++
			d.open(ev, stateUnsynced)
		}
		d.tx.bytes = append(d.tx.bytes, ev.Data)

	case core.EventStop:
		return d.finish(ev)

	default:
		d.stats.Ignored++
	}

	return core.Annotation{}, false
}

// InTransaction reports whether a transaction is open and the number of
// bytes it holds.
func (d *Decoder) InTransaction() (bool, int) {
	return d.state != stateIdle, len(d.tx.bytes)
}

// Reset discards any open transaction. Counters are kept.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.tx = transaction{}
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) open(ev core.BusEvent, s state) {
	kind := core.AnnotationError
	if s == stateFramed {
		kind = core.AnnotationDecoded
	}
	d.state = s
	d.tx = transaction{
		ann: core.Annotation{
			Kind:  kind,
			Start: ev.Start,
			End:   ev.End,
		},
		bytes: make([]byte, 0, measurementLen),
	}
}

func (d *Decoder) finish(ev core.BusEvent) (core.Annotation, bool) {
	if d.state == stateIdle {
		return core.Annotation{}, false
	}

	tx := d.tx
	d.Reset()

	if !tx.targeted {
		d.stats.Dropped++
		return core.Annotation{}, false
	}

	ann := tx.ann
	ann.End = ev.End
	ann.Read = tx.read
	ann.Bytes = tx.bytes
	if tx.read {
		interpretRead(&ann, tx.bytes)
	} else {
		interpretCommand(&ann, tx.bytes)
	}

	if ann.Measurement != nil && !ann.Measurement.Valid() {
		d.stats.CRCErrors++
	}
	d.stats.Emitted++
	return ann, true
}
