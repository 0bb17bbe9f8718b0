package decoder

import (
	"strconv"
	"strings"

	"firestige.xyz/shtdecode/internal/core"
)

const (
	measurementLen = 6
	identifierLen  = 2
)

// HumidityFromRaw converts a raw humidity word to %RH.
func HumidityFromRaw(raw uint16) float64 {
	return 100 * (float64(raw) / 65536)
}

// TemperatureFromRaw converts a raw temperature word to °C.
func TemperatureFromRaw(raw uint16) float64 {
	return -45 + 175*(float64(raw)/65536)
}

// Identifier extracts the identifier value from an ID register read.
// The bit selection is kept exactly as existing tooling renders it.
func Identifier(readID uint16) uint16 {
	return ((readID >> 5) & 1) | (readID & 0x3F)
}

// interpretRead renders a read transaction.
func interpretRead(ann *core.Annotation, data []byte) {
	switch len(data) {
	case measurementLen:
		ann.Kind = core.AnnotationDecoded
		interpretMeasurement(ann, data)
	case identifierLen:
		ann.Kind = core.AnnotationDecoded
		id := Identifier(uint16(data[0])<<8 | uint16(data[1]))
		ann.Identifier = &id
		ann.Data = "SHT identifier: " + strconv.FormatUint(uint64(id), 10)
	default:
		ann.Kind = core.AnnotationError
		ann.Address = core.AddressError
		ann.Data = "Invalid number of bytes: " + formatBytes(data)
	}
}

// interpretMeasurement validates both words; a single CRC failure rejects the reading.
func interpretMeasurement(ann *core.Annotation, data []byte) {
	m := core.Measurement{
		HumidityOK:    CheckCRC(data[0:3]),
		TemperatureOK: CheckCRC(data[3:6]),
	}
	if m.HumidityOK {
		m.HumidityRH = HumidityFromRaw(uint16(data[0])<<8 | uint16(data[1]))
	}
	if m.TemperatureOK {
		m.TemperatureC = TemperatureFromRaw(uint16(data[3])<<8 | uint16(data[4]))
	}
	ann.Measurement = &m

	if !m.Valid() {
		ann.Data = "CRC error"
		return
	}
	ann.Data = "RH: " + FormatReading(m.HumidityRH) + " Temp: " + FormatReading(m.TemperatureC) + " °C"
}

// FormatReading rounds v to two decimals and prints the shortest form that
// keeps at least one fractional digit: 25 -> "25.0", 35.765 -> "35.77".
func FormatReading(v float64) string {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// formatBytes renders bytes as a bracketed decimal list, e.g. "[18, 52]".
func formatBytes(data []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range data {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(b)))
	}
	sb.WriteByte(']')
	return sb.String()
}
