package core

import (
	"errors"
	"testing"
)

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind     EventKind
		expected string
	}{
		{EventStart, "start"},
		{EventAddress, "address"},
		{EventData, "data"},
		{EventStop, "stop"},
		{EventKind(42), "unknown(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("String() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestParseEventKind(t *testing.T) {
	for _, kind := range []EventKind{EventStart, EventAddress, EventData, EventStop} {
		parsed, err := ParseEventKind(kind.String())
		if err != nil {
			t.Fatalf("ParseEventKind(%q) returned error: %v", kind.String(), err)
		}
		if parsed != kind {
			t.Errorf("ParseEventKind(%q) = %v, expected %v", kind.String(), parsed, kind)
		}
	}

	_, err := ParseEventKind("ack")
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestEventConstructors(t *testing.T) {
	addr := AddressEvent(10, 20, 0x70, true)
	if addr.Kind != EventAddress || addr.Address != 0x70 || !addr.Read {
		t.Errorf("unexpected address event: %+v", addr)
	}
	if addr.Start != 10 || addr.End != 20 {
		t.Errorf("timestamps not carried through: %+v", addr)
	}

	data := DataEvent(30, 40, 0xEF)
	if data.Kind != EventData || data.Data != 0xEF {
		t.Errorf("unexpected data event: %+v", data)
	}

	if StartEvent(0, 1).Kind != EventStart || StopEvent(0, 1).Kind != EventStop {
		t.Error("start/stop constructors produced wrong kinds")
	}
}

func TestMeasurementValid(t *testing.T) {
	m := Measurement{HumidityOK: true, TemperatureOK: true}
	if !m.Valid() {
		t.Error("expected measurement with both CRCs ok to be valid")
	}
	m.TemperatureOK = false
	if m.Valid() {
		t.Error("expected measurement with one failed CRC to be invalid")
	}
}

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrMalformedRecord,
		ErrUnsupportedFormat,
		ErrUnsupportedLinkType,
		ErrSinkClosed,
		ErrUnsupportedSink,
		ErrConfigInvalid,
	}
	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v unexpectedly matches %v", a, b)
			}
		}
	}
}
