// Package sim simulates an I2C bus with an SHTC3 sensor attached and
// records the traffic as bus events.
package sim

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/source/pcap"
)

// ErrNACK is returned by Tx when no device acknowledges the address or a
// written byte.
var ErrNACK = errors.New("sim: not acknowledged")

// Target is a device that answers on one I2C address.
type Target interface {
	Address() uint16
	// Write receives the bytes of a write phase. An error NACKs them.
	Write(w []byte) error
	// Read fills the buffer of a read phase.
	Read(r []byte) error
}

// bitsPerByte counts the eight data bits and the ACK bit.
const bitsPerByte = 9

// Compile-time check.
var _ drivers.I2C = (*Bus)(nil)

// Bus is a recording I2C controller. Every Tx is expanded into bus events
// timestamped by a synthetic clock running at the bus frequency. Bus is not
// safe for concurrent use.
type Bus struct {
	bit     time.Duration
	idle    time.Duration
	now     time.Duration
	targets map[uint16]Target
	events  []core.BusEvent

	pcap   *pcap.Writer
	origin time.Time
	err    error // first pcap write error

	txs   uint64
	nacks uint64
}

// NewBus creates a bus clocked at hz (100 kHz if hz <= 0).
func NewBus(hz int) *Bus {
	if hz <= 0 {
		hz = 100_000
	}
	bit := time.Second / time.Duration(hz)
	return &Bus{
		bit:     bit,
		idle:    20 * bit,
		targets: make(map[uint16]Target),
	}
}

// Attach connects a target device.
func (b *Bus) Attach(t Target) {
	b.targets[t.Address()] = t
}

// RecordPcap mirrors every message into w, with timestamps relative to origin.
func (b *Bus) RecordPcap(w *pcap.Writer, origin time.Time) {
	b.pcap = w
	b.origin = origin
}

// Tx performs a write phase (if w is non-empty or r is empty) followed by a
// read phase (if r is non-empty), joined by a repeated start. A decoder that
// resets on Start only sees the read phase of such a combined transfer.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.txs++
	b.start()

	if len(w) > 0 || len(r) == 0 {
		if err := b.write(addr, w); err != nil {
			b.stop()
			return err
		}
		if len(r) > 0 {
			b.start()
		}
	}
	if len(r) > 0 {
		if err := b.read(addr, r, len(w) > 0); err != nil {
			b.stop()
			return err
		}
	}

	b.stop()
	return nil
}

func (b *Bus) write(addr uint16, w []byte) error {
	t, acked := b.targets[addr]
	b.address(addr, false)
	if !acked {
		b.nacks++
		b.record(pcap.Message{Addr: addr})
		return fmt.Errorf("%w: address %#x", ErrNACK, addr)
	}

	for _, c := range w {
		b.data(c)
	}
	b.record(pcap.Message{Addr: addr, Data: w})

	if err := t.Write(w); err != nil {
		b.nacks++
		return fmt.Errorf("%w: %#x rejected write: %v", ErrNACK, addr, err)
	}
	return nil
}

// read runs a read phase; repeated marks it as following a write phase of
// the same transfer.
func (b *Bus) read(addr uint16, r []byte, repeated bool) error {
	t, acked := b.targets[addr]
	b.address(addr, true)
	msg := pcap.Message{Addr: addr, Read: true, Repeated: repeated}
	if !acked {
		b.nacks++
		b.record(msg)
		return fmt.Errorf("%w: address %#x", ErrNACK, addr)
	}

	err := t.Read(r)
	if err != nil {
		b.nacks++
		b.record(msg)
		return fmt.Errorf("%w: %#x rejected read: %v", ErrNACK, addr, err)
	}
	for _, c := range r {
		b.data(c)
	}
	msg.Data = r
	b.record(msg)
	return nil
}

func (b *Bus) advance(d time.Duration) (time.Duration, time.Duration) {
	start := b.now
	b.now += d
	return start, b.now
}

func (b *Bus) start() {
	s, e := b.advance(b.bit / 2)
	b.events = append(b.events, core.StartEvent(s, e))
}

func (b *Bus) address(addr uint16, read bool) {
	s, e := b.advance(bitsPerByte * b.bit)
	b.events = append(b.events, core.AddressEvent(s, e, addr, read))
}

func (b *Bus) data(v byte) {
	s, e := b.advance(bitsPerByte * b.bit)
	b.events = append(b.events, core.DataEvent(s, e, v))
}

func (b *Bus) stop() {
	s, e := b.advance(b.bit / 2)
	b.events = append(b.events, core.StopEvent(s, e))
	b.now += b.idle
}

func (b *Bus) record(m pcap.Message) {
	if b.pcap == nil || b.err != nil {
		return
	}
	b.err = b.pcap.WriteMessage(b.origin.Add(b.now), m)
}

// Idle advances the bus clock without traffic.
func (b *Bus) Idle(d time.Duration) {
	b.now += d
}

// Now returns the bus clock.
func (b *Bus) Now() time.Duration {
	return b.now
}

// Events returns the recorded events and clears the recording.
func (b *Bus) Events() []core.BusEvent {
	evs := b.events
	b.events = nil
	return evs
}

// Err returns the first pcap recording error, if any.
func (b *Bus) Err() error {
	return b.err
}

// Counts returns the number of Tx calls and NACKed phases.
func (b *Bus) Counts() (txs, nacks uint64) {
	return b.txs, b.nacks
}
