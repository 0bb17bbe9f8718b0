package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"tinygo.org/x/drivers/shtc3"

	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/core/decoder"
	"firestige.xyz/shtdecode/internal/log"
	"firestige.xyz/shtdecode/internal/source/pcap"
)

// Config describes one simulation run.
type Config struct {
	Cycles       int
	BusHz        int
	HumidityRH   float64
	TemperatureC float64
	ChipID       uint16
	Pcap         io.Writer // optional capture of the traffic
}

// Reading is what the driver reported for one measurement cycle.
type Reading struct {
	TemperatureC float64
	HumidityRH   float64
}

// Result is the outcome of a simulation run.
type Result struct {
	Events   []core.BusEvent
	Readings []Reading
	Commands []uint16
}

// measurementTime is the SHTC3 normal-mode conversion time.
const measurementTime = 12100 * time.Microsecond

// Run reads the ID register, then drives the shtc3 driver through
// cfg.Cycles wake/measure/sleep cycles.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	sensor := NewSHTC3(cfg.ChipID, cfg.HumidityRH, cfg.TemperatureC)
	bus := NewBus(cfg.BusHz)
	bus.Attach(sensor)
	if cfg.Pcap != nil {
		w, err := pcap.NewWriter(cfg.Pcap, 0)
		if err != nil {
			return nil, err
		}
		bus.RecordPcap(w, time.Unix(0, 0).UTC())
	}

	logger := log.GetLogger().WithField("component", "sim")
	res := &Result{}

	cmd := make([]byte, 2)
	binary.BigEndian.PutUint16(cmd, decoder.CmdReadID)
	if err := bus.Tx(sensor.Address(), cmd, nil); err != nil {
		return nil, fmt.Errorf("read id command: %w", err)
	}
	id := make([]byte, 2)
	if err := bus.Tx(sensor.Address(), nil, id); err != nil {
		return nil, fmt.Errorf("read id: %w", err)
	}
	logger.Debugf("chip id %#04x", uint16(id[0])<<8|uint16(id[1]))

	drv := shtc3.New(bus)
	for i := 0; i < cfg.Cycles; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := drv.WakeUp(); err != nil {
			return nil, fmt.Errorf("cycle %d: wake up: %w", i, err)
		}
		bus.Idle(240 * time.Microsecond)

		tmc, rh, err := drv.ReadTemperatureHumidity()
		if err != nil {
			return nil, fmt.Errorf("cycle %d: measure: %w", i, err)
		}
		bus.Idle(measurementTime)
		r := Reading{TemperatureC: float64(tmc) / 1000, HumidityRH: float64(rh) / 100}
		res.Readings = append(res.Readings, r)
		logger.WithFields(map[string]interface{}{
			"cycle":         i,
			"temperature_c": r.TemperatureC,
			"humidity_rh":   r.HumidityRH,
		}).Debug("driver reading")

		if err := drv.Sleep(); err != nil {
			return nil, fmt.Errorf("cycle %d: sleep: %w", i, err)
		}
		bus.Idle(time.Millisecond)
	}

	if err := bus.Err(); err != nil {
		return nil, fmt.Errorf("pcap recording: %w", err)
	}

	res.Events = bus.Events()
	res.Commands = sensor.Commands()
	txs, nacks := bus.Counts()
	logger.WithFields(map[string]interface{}{
		"transfers": txs,
		"nacks":     nacks,
		"events":    len(res.Events),
		"bus_time":  bus.Now(),
	}).Info("simulation finished")
	return res, nil
}

// Source replays recorded events into the decode pipeline.
type Source struct {
	events []core.BusEvent
	pos    int
}

// NewSource wraps recorded events.
func NewSource(events []core.BusEvent) *Source {
	return &Source{events: events}
}

func (s *Source) Name() string {
	return "sim"
}

func (s *Source) Next(ctx context.Context) (core.BusEvent, error) {
	if err := ctx.Err(); err != nil {
		return core.BusEvent{}, err
	}
	if s.pos >= len(s.events) {
		return core.BusEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *Source) Close() error {
	return nil
}
