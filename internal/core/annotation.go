package core

import "time"

// AnnotationKind is the result type shown by the annotation consumer.
type AnnotationKind string

const (
	// AnnotationError marks a transaction that could not be decoded.
	AnnotationError AnnotationKind = "error"
	// AnnotationDecoded carries a human-readable interpretation.
	AnnotationDecoded AnnotationKind = "hi2c"
)

// AddressError is the literal placed in Annotation.Address for reads of unexpected length.
const AddressError = "error"

// Annotation is emitted once per completed transaction addressed to the sensor.
// It is immutable once emitted.
type Annotation struct {
	Kind    AnnotationKind `json:"type" cbor:"type"`
	Start   time.Duration  `json:"start_time" cbor:"start_time"`
	End     time.Duration  `json:"end_time" cbor:"end_time"`
	Data    string         `json:"data" cbor:"data"`
	Address string         `json:"address,omitempty" cbor:"address,omitempty"`

	// Transaction context, not part of the rendered text
	Read  bool   `json:"read" cbor:"read"`
	Bytes []byte `json:"bytes,omitempty" cbor:"bytes,omitempty"`

	// Typed results; at most one is set
	Measurement *Measurement `json:"measurement,omitempty" cbor:"measurement,omitempty"`
	Command     *Command     `json:"command,omitempty" cbor:"command,omitempty"`
	Identifier  *uint16      `json:"identifier,omitempty" cbor:"identifier,omitempty"`
}

// Measurement is a combined humidity and temperature reading with CRC results.
type Measurement struct {
	HumidityRH    float64 `json:"humidity_rh" cbor:"humidity_rh"`
	TemperatureC  float64 `json:"temperature_c" cbor:"temperature_c"`
	HumidityOK    bool    `json:"humidity_crc_ok" cbor:"humidity_crc_ok"`
	TemperatureOK bool    `json:"temperature_crc_ok" cbor:"temperature_crc_ok"`
}

// Valid reports whether both CRC checks passed.
func (m Measurement) Valid() bool {
	return m.HumidityOK && m.TemperatureOK
}

// Command is a decoded sensor command word.
type Command struct {
	Code  uint16 `json:"code" cbor:"code"`
	Name  string `json:"name,omitempty" cbor:"name,omitempty"`
	Known bool   `json:"known" cbor:"known"`
}
