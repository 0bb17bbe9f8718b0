package sim

import (
	"fmt"
	"math"

	"firestige.xyz/shtdecode/internal/core/decoder"
)

// SHTC3 answers like the Sensirion SHTC3 humidity and temperature sensor.
type SHTC3 struct {
	addr         uint16
	id           uint16
	HumidityRH   float64
	TemperatureC float64

	asleep   bool
	pending  []byte
	commands []uint16
}

// NewSHTC3 creates an awake sensor at decoder.DefaultAddress.
func NewSHTC3(id uint16, humidityRH, temperatureC float64) *SHTC3 {
	return &SHTC3{
		addr:         decoder.DefaultAddress,
		id:           id,
		HumidityRH:   humidityRH,
		TemperatureC: temperatureC,
	}
}

func (s *SHTC3) Address() uint16 {
	return s.addr
}

// Write executes one command word. An empty write is an address probe.
func (s *SHTC3) Write(w []byte) error {
	if len(w) == 0 {
		return nil
	}
	if len(w) != 2 {
		return fmt.Errorf("command must be 2 bytes, got %d", len(w))
	}
	code := uint16(w[0])<<8 | uint16(w[1])

	if s.asleep && code != decoder.CmdWakeup {
		return fmt.Errorf("sensor asleep, ignoring %#04x", code)
	}
	switch {
	case code == decoder.CmdWakeup:
		s.asleep = false
	case code == decoder.CmdSleep:
		s.asleep = true
		s.pending = nil
	case code == decoder.CmdSoftReset:
		s.pending = nil
	case code == decoder.CmdReadID:
		s.pending = word(s.id)
	case decoder.IsMeasurement(code):
		rh, t := word(RawHumidity(s.HumidityRH)), word(RawTemperature(s.TemperatureC))
		if decoder.IsTemperatureFirst(code) {
			s.pending = append(t, rh...)
		} else {
			s.pending = append(rh, t...)
		}
	default:
		return fmt.Errorf("unknown command %#04x", code)
	}
	s.commands = append(s.commands, code)
	return nil
}

// Read returns the pending response. Bytes past the response read as 0xFF,
// like a released SDA line.
func (s *SHTC3) Read(r []byte) error {
	if s.asleep {
		return fmt.Errorf("sensor asleep")
	}
	n := copy(r, s.pending)
	for i := n; i < len(r); i++ {
		r[i] = 0xFF
	}
	s.pending = nil
	return nil
}

// Commands returns the command words accepted so far.
func (s *SHTC3) Commands() []uint16 {
	return append([]uint16(nil), s.commands...)
}

// Asleep reports whether the sensor is in sleep mode.
func (s *SHTC3) Asleep() bool {
	return s.asleep
}

func word(v uint16) []byte {
	b := []byte{byte(v >> 8), byte(v)}
	return append(b, decoder.CRC8(b))
}

// RawHumidity is the inverse of decoder.HumidityFromRaw.
func RawHumidity(rh float64) uint16 {
	return clampRaw(rh / 100 * 65536)
}

// RawTemperature is the inverse of decoder.TemperatureFromRaw.
func RawTemperature(c float64) uint16 {
	return clampRaw((c + 45) / 175 * 65536)
}

func clampRaw(v float64) uint16 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
