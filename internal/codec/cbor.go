// Package codec provides the CBOR encoding used for annotation files and
// Kafka messages.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// annotation always produces the same bytes.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

type (
	Encoder = cbor.Encoder
	Decoder = cbor.Decoder
)

// NewEncoder returns a stream encoder writing a CBOR sequence to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading a CBOR sequence from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
