// Package source opens bus event sources for the decode pipeline.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/source/pcap"
	"firestige.xyz/shtdecode/internal/source/saleae"
)

// Source yields bus events in capture order. Next returns io.EOF once the
// capture is exhausted. Errors wrapping core.ErrMalformedRecord are
// recoverable: the caller may log them and call Next again.
type Source interface {
	Name() string
	Next(ctx context.Context) (core.BusEvent, error)
	Close() error
}

const (
	FormatAuto = "auto"
	FormatCSV  = "csv"
	FormatPcap = "pcap"
)

// pcap magic numbers: microsecond and nanosecond, both byte orders.
var pcapMagics = [][]byte{
	{0xd4, 0xc3, 0xb2, 0xa1},
	{0xa1, 0xb2, 0xc3, 0xd4},
	{0x4d, 0x3c, 0xb2, 0xa1},
	{0xa1, 0xb2, 0x3c, 0x4d},
}

// Open opens the source described by cfg. Path "-" reads stdin.
func Open(cfg config.SourceConfig) (Source, error) {
	var (
		r      io.Reader
		closer io.Closer
	)
	if cfg.Path == "" || cfg.Path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture %s: %w", cfg.Path, err)
		}
		r, closer = f, f
	}

	src, err := New(r, closer, cfg.Format, cfg.Path)
	if err != nil && closer != nil {
		closer.Close()
	}
	return src, err
}

// New wraps an already open reader. With FormatAuto the format is taken
// from the file extension, falling back to sniffing the pcap magic.
func New(r io.Reader, closer io.Closer, format, path string) (Source, error) {
	if format == "" || format == FormatAuto {
		var br *bufio.Reader
		format, br = detect(r, path)
		r = br
	}

	switch format {
	case FormatCSV:
		return saleae.NewSource(r, closer)
	case FormatPcap:
		return pcap.NewSource(r, closer)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, format)
	}
}

func detect(r io.Reader, path string) (string, *bufio.Reader) {
	br := bufio.NewReader(r)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap":
		return FormatPcap, br
	case ".csv":
		return FormatCSV, br
	}

	magic, _ := br.Peek(4)
	for _, m := range pcapMagics {
		if bytes.Equal(magic, m) {
			return FormatPcap, br
		}
	}
	return FormatCSV, br
}
