package pcap

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/shtdecode/internal/core"
)

func drain(t *testing.T, s *Source) []core.BusEvent {
	t.Helper()
	var out []core.BusEvent
	for {
		ev, err := s.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestWriteAndReadBack(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1)
	require.NoError(t, err)

	t0 := time.Unix(1700000000, 0)
	require.NoError(t, w.WriteMessage(t0, Message{Addr: 0x70, Data: []byte{0xEF, 0xC8}}))
	require.NoError(t, w.WriteMessage(t0.Add(250*time.Microsecond), Message{Addr: 0x70, Read: true, Data: []byte{0x08, 0x87, 0x5B}}))

	s, err := NewSource(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())

	events := drain(t, s)
	// 2 data bytes + 3 data bytes, each message framed by Start, Address and Stop.
	require.Len(t, events, 2+3+2*3)
	assert.Equal(t, uint64(2), s.Records())

	assert.Equal(t, core.StartEvent(0, 0), events[0])
	assert.Equal(t, core.AddressEvent(0, 0, 0x70, false), events[1])
	assert.Equal(t, core.DataEvent(0, 0, 0xEF), events[2])
	assert.Equal(t, core.DataEvent(0, 0, 0xC8), events[3])
	assert.Equal(t, core.StopEvent(0, 0), events[4])

	ts := 250 * time.Microsecond
	assert.Equal(t, core.StartEvent(ts, ts), events[5])
	assert.Equal(t, core.AddressEvent(ts, ts, 0x70, true), events[6])
	assert.Equal(t, core.DataEvent(ts, ts, 0x08), events[7])
	assert.Equal(t, core.DataEvent(ts, ts, 0x87), events[8])
	assert.Equal(t, core.DataEvent(ts, ts, 0x5B), events[9])
	assert.Equal(t, core.StopEvent(ts, ts), events[10])
	assert.NoError(t, s.Close())
}

func TestRepeatedStartJoinsMessages(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 0)
	require.NoError(t, err)

	t0 := time.Unix(1700000000, 0)
	ts := 100 * time.Microsecond
	require.NoError(t, w.WriteMessage(t0, Message{Addr: 0x70, Data: []byte{0x78, 0x66}}))
	require.NoError(t, w.WriteMessage(t0.Add(ts), Message{Addr: 0x70, Read: true, Repeated: true, Data: []byte{0x01}}))
	require.NoError(t, w.WriteMessage(t0.Add(2*ts), Message{Addr: 0x70, Data: []byte{0xB0, 0x98}}))

	s, err := NewSource(&buf, nil)
	require.NoError(t, err)
	events := drain(t, s)

	want := []core.BusEvent{
		core.StartEvent(0, 0),
		core.AddressEvent(0, 0, 0x70, false),
		core.DataEvent(0, 0, 0x78),
		core.DataEvent(0, 0, 0x66),
		core.StartEvent(ts, ts),
		core.AddressEvent(ts, ts, 0x70, true),
		core.DataEvent(ts, ts, 0x01),
		core.StopEvent(ts, ts),
		core.StartEvent(2*ts, 2*ts),
		core.AddressEvent(2*ts, 2*ts, 0x70, false),
		core.DataEvent(2*ts, 2*ts, 0xB0),
		core.DataEvent(2*ts, 2*ts, 0x98),
		core.StopEvent(2*ts, 2*ts),
	}
	assert.Equal(t, want, events)
}

func TestEmptyReadMessage(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 0)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(time.Unix(10, 0), Message{Addr: 0x44}))

	s, err := NewSource(&buf, nil)
	require.NoError(t, err)
	events := drain(t, s)
	require.Len(t, events, 3)
	assert.Equal(t, core.EventStart, events[0].Kind)
	assert.Equal(t, uint16(0x44), events[1].Address)
	assert.Equal(t, core.EventStop, events[2].Kind)
}

func rawCapture(t *testing.T, link layers.LinkType, records ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(maxSnapLen, link))
	for i, rec := range records {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(100, int64(i)*1000),
			CaptureLength: len(rec),
			Length:        len(rec),
		}
		require.NoError(t, w.WritePacket(ci, rec))
	}
	return &buf
}

func TestEventRecordsSkipped(t *testing.T) {
	buf := rawCapture(t, LinkTypeI2CLinux,
		[]byte{0x80, 0, 0, 0, 0, 0},
		[]byte{0x01, 0, 0, 0, 1, 0xE1, 0x42},
	)
	s, err := NewSource(buf, nil)
	require.NoError(t, err)

	events := drain(t, s)
	require.Len(t, events, 4)
	assert.Equal(t, core.AddressEvent(0, 0, 0x70, true), events[1])
	assert.Equal(t, byte(0x42), events[2].Data)
}

func TestReadFlagWithoutAddressBit(t *testing.T) {
	buf := rawCapture(t, LinkTypeI2CLinux, []byte{0x00, 0, 0, 0, 1, 0xE0})
	s, err := NewSource(buf, nil)
	require.NoError(t, err)

	events := drain(t, s)
	require.Len(t, events, 3)
	assert.True(t, events[1].Read)
}

func TestShortRecord(t *testing.T) {
	buf := rawCapture(t, LinkTypeI2CLinux, []byte{0x00, 0x00, 0x00})
	s, err := NewSource(buf, nil)
	require.NoError(t, err)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestUnsupportedLinkType(t *testing.T) {
	buf := rawCapture(t, layers.LinkTypeEthernet)
	_, err := NewSource(buf, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedLinkType)
}

func TestNotAPcap(t *testing.T) {
	_, err := NewSource(bytes.NewReader([]byte("type,start_time\n")), nil)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	buf := rawCapture(t, LinkTypeI2CLinux, []byte{0x00, 0, 0, 0, 0, 0xE0})
	s, err := NewSource(buf, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
