package decoder

import (
	"fmt"

	"firestige.xyz/shtdecode/internal/core"
)

// Command words understood by the sensor.
const (
	CmdWakeup         uint16 = 0x3517
	CmdSleep          uint16 = 0xB098
	CmdSoftReset      uint16 = 0x805D
	CmdReadID         uint16 = 0xEFC8
	CmdNormalTempCS   uint16 = 0x7CA2
	CmdNormalRHCS     uint16 = 0x5C24
	CmdNormalTemp     uint16 = 0x7866
	CmdNormalRH       uint16 = 0x58E0
	CmdLowPowerTempCS uint16 = 0x6458
	CmdLowPowerRHCS   uint16 = 0x44DE
	CmdLowPowerTemp   uint16 = 0x609C
	CmdLowPowerRH     uint16 = 0x401A
)

var commandNames = map[uint16]string{
	CmdWakeup:         "Wakeup",
	CmdSleep:          "Sleep",
	CmdSoftReset:      "Software reset",
	CmdReadID:         "Read ID register",
	CmdNormalTempCS:   "Read normal mode, measure temperature first with clock stretching enabled",
	CmdNormalRHCS:     "Read normal mode, measure RH first with clock stretching enabled",
	CmdNormalTemp:     "Read normal mode, measure temperature first with clock stretching disabled",
	CmdNormalRH:       "Read normal mode, measure RH first with clock stretching disabled",
	CmdLowPowerTempCS: "Read low power mode, measure temperature first with clock stretching enabled",
	CmdLowPowerRHCS:   "Read low power mode, measure RH first with clock stretching enabled",
	CmdLowPowerTemp:   "Read low power mode, measure temperature first with clock stretching disabled",
	CmdLowPowerRH:     "Read low power mode, measure RH first with clock stretching disabled",
}

// CommandName returns the name of a known command word.
func CommandName(code uint16) (string, bool) {
	name, ok := commandNames[code]
	return name, ok
}

// IsTemperatureFirst reports whether a measurement command returns the
// temperature word before the humidity word.
func IsTemperatureFirst(code uint16) bool {
	switch code {
	case CmdNormalTempCS, CmdNormalTemp, CmdLowPowerTempCS, CmdLowPowerTemp:
		return true
	}
	return false
}

// IsMeasurement reports whether code starts a measurement.
func IsMeasurement(code uint16) bool {
	switch code {
	case CmdNormalTempCS, CmdNormalRHCS, CmdNormalTemp, CmdNormalRH,
		CmdLowPowerTempCS, CmdLowPowerRHCS, CmdLowPowerTemp, CmdLowPowerRH:
		return true
	}
	return false
}

// interpretCommand renders a write transaction. Every outcome is a decoded
// annotation, including unknown codes and wrong lengths.
func interpretCommand(ann *core.Annotation, data []byte) {
	ann.Kind = core.AnnotationDecoded

	if len(data) != 2 {
		ann.Data = fmt.Sprintf("Invalid command: unexpected number of bytes read, expected 2 got %d", len(data))
		return
	}

	code := uint16(data[0])<<8 | uint16(data[1])
	name, ok := CommandName(code)
	ann.Command = &core.Command{Code: code, Name: name, Known: ok}
	if !ok {
		ann.Data = fmt.Sprintf("Invalid command: %#x", code)
		return
	}
	ann.Data = "Command: " + name
}
