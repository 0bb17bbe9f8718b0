// Package saleae reads the CSV export of the Saleae Logic 2 I2C analyzer.
//
// The export has one row per analyzer frame:
//
//	name,type,start_time,duration,ack,address,read,data
//	"I2C","start",0.0010,2e-09,,,,
//	"I2C","address",0.0011,0.0000900,true,0x70,false,
//	"I2C","data",0.0012,0.0000900,true,,,0xEF
//	"I2C","stop",0.0013,2e-09,,,,
//
// Columns are located by header name, so extra or reordered columns are
// accepted. Times are seconds from the capture start.
package saleae

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/shtdecode/internal/core"
)

const Name = "saleae"

const (
	colType     = "type"
	colStart    = "start_time"
	colDuration = "duration"
	colAddress  = "address"
	colRead     = "read"
	colData     = "data"
)

var requiredColumns = []string{colType, colStart}

// Source yields one bus event per CSV row.
type Source struct {
	r      *csv.Reader
	closer io.Closer
	cols   map[string]int
}

// NewSource reads and indexes the header row. closer may be nil.
func NewSource(r io.Reader, closer io.Closer) (*Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv export", core.ErrMalformedRecord)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: csv header missing column %q", core.ErrMalformedRecord, name)
		}
	}

	return &Source{r: cr, closer: closer, cols: cols}, nil
}

func (s *Source) Name() string {
	return Name
}

// Next parses the next row. A malformed row returns an error wrapping
// core.ErrMalformedRecord; the caller may keep reading after it.
func (s *Source) Next(ctx context.Context) (core.BusEvent, error) {
	if err := ctx.Err(); err != nil {
		return core.BusEvent{}, err
	}

	record, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.BusEvent{}, io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return core.BusEvent{}, fmt.Errorf("%w: %v", core.ErrMalformedRecord, perr)
		}
		return core.BusEvent{}, fmt.Errorf("failed to read csv: %w", err)
	}

	line, _ := s.r.FieldPos(0)
	ev, err := s.parse(record)
	if err != nil {
		if errors.Is(err, core.ErrMalformedRecord) {
			return core.BusEvent{}, fmt.Errorf("line %d: %w", line, err)
		}
		return core.BusEvent{}, fmt.Errorf("%w: line %d: %v", core.ErrMalformedRecord, line, err)
	}
	return ev, nil
}

func (s *Source) field(record []string, name string) string {
	i, ok := s.cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (s *Source) parse(record []string) (core.BusEvent, error) {
	kind, err := core.ParseEventKind(strings.ToLower(s.field(record, colType)))
	if err != nil {
		return core.BusEvent{}, err
	}

	start, err := parseSeconds(s.field(record, colStart))
	if err != nil {
		return core.BusEvent{}, fmt.Errorf("start_time: %w", err)
	}
	end := start
	if d := s.field(record, colDuration); d != "" {
		dur, err := parseSeconds(d)
		if err != nil {
			return core.BusEvent{}, fmt.Errorf("duration: %w", err)
		}
		end = start + dur
	}

	ev := core.BusEvent{Kind: kind, Start: start, End: end}
	switch kind {
	case core.EventAddress:
		addr, err := strconv.ParseUint(s.field(record, colAddress), 0, 16)
		if err != nil {
			return core.BusEvent{}, fmt.Errorf("address: %w", err)
		}
		ev.Address = uint16(addr)
		if r := s.field(record, colRead); r != "" {
			ev.Read, err = strconv.ParseBool(r)
			if err != nil {
				return core.BusEvent{}, fmt.Errorf("read: %w", err)
			}
		}
	case core.EventData:
		b, err := strconv.ParseUint(s.field(record, colData), 0, 8)
		if err != nil {
			return core.BusEvent{}, fmt.Errorf("data: %w", err)
		}
		ev.Data = byte(b)
	}
	return ev, nil
}

func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}

func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
