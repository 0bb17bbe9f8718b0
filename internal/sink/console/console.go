// Package console writes annotations to a terminal or pipe.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"firestige.xyz/shtdecode/internal/core"
)

const Name = "console"

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Sink renders one line per annotation.
type Sink struct {
	w       *bufio.Writer
	enc     *json.Encoder
	format  string
	closed  bool
	written atomic.Uint64
}

// New returns a sink writing to w in the given format ("" means text).
func New(w io.Writer, format string) (*Sink, error) {
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("invalid format %q, must be json or text", format)
	}
	bw := bufio.NewWriter(w)
	return &Sink{w: bw, enc: json.NewEncoder(bw), format: format}, nil
}

func (s *Sink) Name() string {
	return Name
}

func (s *Sink) Write(ctx context.Context, ann *core.Annotation) error {
	if ann == nil {
		return fmt.Errorf("nil annotation")
	}
	if s.closed {
		return core.ErrSinkClosed
	}

	var err error
	if s.format == FormatJSON {
		err = s.enc.Encode(ann)
	} else {
		_, err = io.WriteString(s.w, Render(ann)+"\n")
	}
	if err != nil {
		return fmt.Errorf("console write failed: %w", err)
	}
	s.written.Add(1)
	return nil
}

// Written returns the number of annotations written.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

func (s *Sink) Flush(ctx context.Context) error {
	return s.w.Flush()
}

// Close flushes buffered output. The underlying writer is left open.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Flush()
}

// Render formats an annotation as a single text line:
//
//	[1.2ms-1.6ms] hi2c Command: Wakeup
//	[3ms-3.2ms] error Invalid number of bytes: [18, 52] (address: error)
func Render(ann *core.Annotation) string {
	line := fmt.Sprintf("[%v-%v] %s %s", ann.Start, ann.End, ann.Kind, ann.Data)
	if ann.Address != "" {
		line += fmt.Sprintf(" (address: %s)", ann.Address)
	}
	return line
}
