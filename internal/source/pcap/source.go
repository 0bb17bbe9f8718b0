// Package pcap reads and writes I2C captures in pcap format with link type
// LINKTYPE_I2C_LINUX (209).
//
// Each record holds one I2C message: a bus byte (bit 7 set marks an event
// record), 4 big-endian flag bytes, the address byte (addr<<1 | rd) and the
// message data. Messages of one combined transfer are joined by a repeated
// start: the continuing record carries flagRepeatedStart and no Stop is
// emitted between the two.
package pcap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/shtdecode/internal/core"
)

const Name = "pcap"

// LinkTypeI2CLinux is LINKTYPE_I2C_LINUX.
const LinkTypeI2CLinux = layers.LinkType(209)

const (
	headerLen  = 5 // bus byte + flags
	eventFlag  = 0x80
	flagRead   = 0x0001 // I2C_M_RD
	maxSnapLen = 65535

	// flagRepeatedStart sits above the 16 i2c_msg flag bits. It marks a
	// message that continues the previous one without a Stop.
	flagRepeatedStart = 0x00010000
)

// Source expands pcap records into bus events.
type Source struct {
	r       *pcapgo.Reader
	closer  io.Closer
	origin  time.Time
	started bool
	pending []core.BusEvent
	stop    *core.BusEvent // Stop of the last message, held until the next record
	records uint64
}

// NewSource reads the pcap file header from r. closer may be nil.
func NewSource(r io.Reader, closer io.Closer) (*Source, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if pr.LinkType() != LinkTypeI2CLinux {
		return nil, fmt.Errorf("%w: %d (want %d)", core.ErrUnsupportedLinkType, pr.LinkType(), LinkTypeI2CLinux)
	}
	return &Source{r: pr, closer: closer}, nil
}

func (s *Source) Name() string {
	return Name
}

// Next returns the next bus event, or io.EOF when the capture is exhausted.
func (s *Source) Next(ctx context.Context) (core.BusEvent, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return core.BusEvent{}, err
		}

		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.stop != nil {
					ev := *s.stop
					s.stop = nil
					return ev, nil
				}
				return core.BusEvent{}, io.EOF
			}
			return core.BusEvent{}, fmt.Errorf("failed to read record: %w", err)
		}
		s.records++

		events, err := s.expand(data, ci)
		if err != nil {
			return core.BusEvent{}, err
		}
		s.pending = events
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// expand turns one record into Start, Address, Data.... The record's Stop is
// held back and only emitted once the next record proves it is not a
// repeated start.
func (s *Source) expand(data []byte, ci gopacket.CaptureInfo) ([]core.BusEvent, error) {
	if len(data) < headerLen+1 {
		return nil, fmt.Errorf("%w: record %d: %d bytes, need at least %d", core.ErrMalformedRecord, s.records, len(data), headerLen+1)
	}
	if data[0]&eventFlag != 0 {
		return nil, nil
	}

	if !s.started {
		s.origin = ci.Timestamp
		s.started = true
	}
	ts := ci.Timestamp.Sub(s.origin)

	flags := binary.BigEndian.Uint32(data[1:headerLen])
	addrByte := data[headerLen]
	read := addrByte&0x01 != 0 || flags&flagRead != 0
	payload := data[headerLen+1:]

	events := make([]core.BusEvent, 0, len(payload)+3)
	if s.stop != nil && flags&flagRepeatedStart == 0 {
		events = append(events, *s.stop)
	}
	events = append(events, core.StartEvent(ts, ts), core.AddressEvent(ts, ts, uint16(addrByte>>1), read))
	for _, b := range payload {
		events = append(events, core.DataEvent(ts, ts, b))
	}
	stop := core.StopEvent(ts, ts)
	s.stop = &stop
	return events, nil
}

// Records returns the number of pcap records read so far.
func (s *Source) Records() uint64 {
	return s.records
}

func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Writer records I2C messages as LINKTYPE_I2C_LINUX pcap records.
type Writer struct {
	w   *pcapgo.Writer
	bus uint8
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer, bus uint8) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(maxSnapLen, LinkTypeI2CLinux); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw, bus: bus & 0x7F}, nil
}

// Message is one I2C message of a transfer.
type Message struct {
	Addr uint16
	Read bool
	// Repeated marks a message that follows the previous one after a
	// repeated start, with no Stop in between.
	Repeated bool
	Data     []byte
}

// WriteMessage appends one I2C message.
func (w *Writer) WriteMessage(ts time.Time, m Message) error {
	payload := m.Data
	record := make([]byte, headerLen+1, headerLen+1+len(payload))
	record[0] = w.bus
	var flags uint32
	addrByte := byte(m.Addr << 1)
	if m.Read {
		flags |= flagRead
		addrByte |= 0x01
	}
	if m.Repeated {
		flags |= flagRepeatedStart
	}
	binary.BigEndian.PutUint32(record[1:headerLen], flags)
	record[headerLen] = addrByte
	record = append(record, payload...)

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(record),
		Length:        len(record),
	}
	return w.w.WritePacket(ci, record)
}
