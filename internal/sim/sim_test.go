package sim

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/core/decoder"
	"firestige.xyz/shtdecode/internal/source/pcap"
)

func decodeAll(events []core.BusEvent) []core.Annotation {
	d := decoder.New(decoder.Config{})
	var out []core.Annotation
	for _, ev := range events {
		if ann, ok := d.Decode(ev); ok {
			out = append(out, ann)
		}
	}
	return out
}

func texts(anns []core.Annotation) []string {
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = a.Data
	}
	return out
}

func TestBusWriteEvents(t *testing.T) {
	bus := NewBus(100_000)
	bus.Attach(NewSHTC3(0x0887, 45, 23.5))

	require.NoError(t, bus.Tx(0x70, []byte{0x35, 0x17}, nil))
	evs := bus.Events()
	require.Len(t, evs, 5)

	kinds := []core.EventKind{core.EventStart, core.EventAddress, core.EventData, core.EventData, core.EventStop}
	for i, k := range kinds {
		assert.Equal(t, k, evs[i].Kind, "event %d", i)
		assert.LessOrEqual(t, evs[i].Start, evs[i].End)
		if i > 0 {
			assert.Equal(t, evs[i-1].End, evs[i].Start)
		}
	}
	assert.Equal(t, uint16(0x70), evs[1].Address)
	assert.False(t, evs[1].Read)
	assert.Equal(t, 90*time.Microsecond, evs[1].End-evs[1].Start)
	assert.Empty(t, bus.Events(), "events are cleared after retrieval")
}

func TestBusCombinedTransferUsesRepeatedStart(t *testing.T) {
	bus := NewBus(400_000)
	bus.Attach(NewSHTC3(0x0887, 45, 23.5))

	r := make([]byte, 3)
	require.NoError(t, bus.Tx(0x70, []byte{0xEF, 0xC8}, r))
	assert.Equal(t, []byte{0x08, 0x87, decoder.CRC8([]byte{0x08, 0x87})}, r)

	evs := bus.Events()
	var starts, stops int
	for _, ev := range evs {
		switch ev.Kind {
		case core.EventStart:
			starts++
		case core.EventStop:
			stops++
		}
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)

	// The repeated start drops the command bytes; three bytes is not a valid read.
	anns := decodeAll(evs)
	require.Len(t, anns, 1)
	assert.Equal(t, core.AnnotationError, anns[0].Kind)
	assert.Equal(t, "Invalid number of bytes: [8, 135, 91]", anns[0].Data)
}

func TestBusNACK(t *testing.T) {
	bus := NewBus(0)
	bus.Attach(NewSHTC3(0x0887, 45, 23.5))

	err := bus.Tx(0x44, []byte{0x24, 0x00}, nil)
	assert.ErrorIs(t, err, ErrNACK)

	evs := bus.Events()
	require.Len(t, evs, 3, "start, address, stop")
	assert.Equal(t, uint16(0x44), evs[1].Address)
	assert.Empty(t, decodeAll(evs))

	err = bus.Tx(0x70, []byte{0x12, 0x34}, nil)
	assert.ErrorIs(t, err, ErrNACK)
	txs, nacks := bus.Counts()
	assert.Equal(t, uint64(2), txs)
	assert.Equal(t, uint64(2), nacks)

	anns := decodeAll(bus.Events())
	require.Len(t, anns, 1)
	assert.Equal(t, "Invalid command: 0x1234", anns[0].Data)
}

func TestSHTC3MeasurementOrder(t *testing.T) {
	s := NewSHTC3(0x0887, 50, 25)
	rh := word(RawHumidity(50))
	temp := word(RawTemperature(25))

	r := make([]byte, 6)
	require.NoError(t, s.Write([]byte{0x58, 0xE0}))
	require.NoError(t, s.Read(r))
	assert.Equal(t, append(append([]byte{}, rh...), temp...), r)

	require.NoError(t, s.Write([]byte{0x78, 0x66}))
	require.NoError(t, s.Read(r))
	assert.Equal(t, append(append([]byte{}, temp...), rh...), r)

	require.NoError(t, s.Read(r))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, r, "response is consumed")
}

func TestSHTC3RHFirstDecodes(t *testing.T) {
	bus := NewBus(0)
	bus.Attach(NewSHTC3(0x0887, 50, 25))

	r := make([]byte, 6)
	require.NoError(t, bus.Tx(0x70, []byte{0x58, 0xE0}, nil))
	require.NoError(t, bus.Tx(0x70, nil, r))

	anns := decodeAll(bus.Events())
	require.Len(t, anns, 2)
	assert.Equal(t, "Command: Read normal mode, measure RH first with clock stretching disabled", anns[0].Data)
	assert.Equal(t, "RH: 50.0 Temp: 25.0 °C", anns[1].Data)
	require.NotNil(t, anns[1].Measurement)
	assert.True(t, anns[1].Measurement.Valid())
}

func TestSHTC3Sleep(t *testing.T) {
	s := NewSHTC3(0x0887, 45, 23.5)
	require.NoError(t, s.Write([]byte{0xB0, 0x98}))
	assert.True(t, s.Asleep())

	assert.Error(t, s.Write([]byte{0xEF, 0xC8}))
	assert.Error(t, s.Read(make([]byte, 2)))

	require.NoError(t, s.Write([]byte{0x35, 0x17}))
	assert.False(t, s.Asleep())
	assert.Equal(t, []uint16{decoder.CmdSleep, decoder.CmdWakeup}, s.Commands())

	assert.Error(t, s.Write([]byte{0x01}))
	assert.Error(t, s.Write([]byte{0xAB, 0xCD}))
	assert.NoError(t, s.Write(nil))
}

func TestRawConversions(t *testing.T) {
	assert.Equal(t, uint16(0), RawHumidity(0))
	assert.Equal(t, uint16(32768), RawHumidity(50))
	assert.Equal(t, uint16(0xFFFF), RawHumidity(100))
	assert.Equal(t, uint16(0), RawTemperature(-60))
	assert.InDelta(t, 23.5, decoder.TemperatureFromRaw(RawTemperature(23.5)), 0.005)
	assert.InDelta(t, 45.0, decoder.HumidityFromRaw(RawHumidity(45)), 0.005)
}

func TestRun(t *testing.T) {
	res, err := Run(context.Background(), Config{
		Cycles:       3,
		BusHz:        100_000,
		HumidityRH:   45,
		TemperatureC: 23.5,
		ChipID:       0x0887,
	})
	require.NoError(t, err)

	require.Len(t, res.Readings, 3)
	for _, r := range res.Readings {
		assert.InDelta(t, 23.5, r.TemperatureC, 0.1)
		assert.InDelta(t, 45.0, r.HumidityRH, 0.1)
	}

	require.GreaterOrEqual(t, len(res.Commands), 1+3*3)
	assert.Equal(t, decoder.CmdReadID, res.Commands[0])
	var wakes, sleeps, measures int
	for _, c := range res.Commands {
		switch {
		case c == decoder.CmdWakeup:
			wakes++
		case c == decoder.CmdSleep:
			sleeps++
		case decoder.IsMeasurement(c):
			measures++
		}
	}
	assert.GreaterOrEqual(t, wakes, 3)
	assert.GreaterOrEqual(t, sleeps, 3)
	assert.GreaterOrEqual(t, measures, 3)

	anns := decodeAll(res.Events)
	all := strings.Join(texts(anns), "\n")
	assert.Contains(t, all, "Command: Read ID register")
	assert.Contains(t, all, "SHT identifier: 7")
	assert.Contains(t, all, "Command: Wakeup")
	assert.Contains(t, all, "Command: Sleep")

	for i := 1; i < len(res.Events); i++ {
		assert.LessOrEqual(t, res.Events[i-1].End, res.Events[i].Start)
	}
}

func TestRunPcapOutput(t *testing.T) {
	var buf bytes.Buffer
	res, err := Run(context.Background(), Config{Cycles: 2, HumidityRH: 45, TemperatureC: 23.5, ChipID: 0x0887, Pcap: &buf})
	require.NoError(t, err)

	src, err := pcap.NewSource(&buf, nil)
	require.NoError(t, err)
	var replayed []core.BusEvent
	for {
		ev, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		replayed = append(replayed, ev)
	}

	// Same transactions, pcap timing aside.
	live, replay := decodeAll(res.Events), decodeAll(replayed)
	assert.Equal(t, texts(live), texts(replay))
	require.Len(t, replayed, len(res.Events))
	for i := range replayed {
		assert.Equal(t, res.Events[i].Kind, replayed[i].Kind, "event %d", i)
	}
}

func TestCombinedTransferPcapRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := pcap.NewWriter(&buf, 0)
	require.NoError(t, err)

	bus := NewBus(0)
	bus.Attach(NewSHTC3(0x0887, 45, 23.5))
	bus.RecordPcap(w, time.Unix(0, 0))
	require.NoError(t, bus.Tx(0x70, []byte{0xEF, 0xC8}, make([]byte, 3)))
	require.NoError(t, bus.Tx(0x70, []byte{0xB0, 0x98}, nil))
	require.NoError(t, bus.Err())
	live := bus.Events()

	src, err := pcap.NewSource(&buf, nil)
	require.NoError(t, err)
	var replayed []core.BusEvent
	for {
		ev, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		replayed = append(replayed, ev)
	}
	assert.Equal(t, uint64(3), src.Records())

	want := []string{"Invalid number of bytes: [8, 135, 91]", "Command: Sleep"}
	assert.Equal(t, want, texts(decodeAll(live)))
	assert.Equal(t, want, texts(decodeAll(replayed)))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Config{Cycles: 1, ChipID: 0x0887})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourceReplay(t *testing.T) {
	evs := []core.BusEvent{core.StartEvent(0, 1), core.StopEvent(2, 3)}
	s := NewSource(evs)
	assert.Equal(t, "sim", s.Name())

	for _, want := range evs {
		got, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, s.Close())
}
