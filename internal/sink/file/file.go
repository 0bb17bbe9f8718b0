// Package file writes annotations to a local file as JSON lines or a CBOR
// sequence, optionally zstd-compressed.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"firestige.xyz/shtdecode/internal/codec"
	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/log"
)

const Name = "file"

const (
	FormatJSONL = "jsonl"
	FormatCBOR  = "cbor"

	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config describes one output file.
type Config struct {
	Path        string
	Format      string // jsonl | cbor
	Compression string // none | zstd
}

type encoder interface {
	Encode(v any) error
}

// Sink owns the output file for its whole lifetime.
type Sink struct {
	cfg     Config
	f       *os.File
	zw      *zstd.Encoder
	bw      *bufio.Writer
	enc     encoder
	closed  bool
	written atomic.Uint64
}

// New creates (or truncates) cfg.Path, creating parent directories.
func New(cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink requires a path")
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSONL
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Path, err)
	}

	s := &Sink{cfg: cfg, f: f}
	var w io.Writer = f
	switch cfg.Compression {
	case CompressionNone:
	case CompressionZstd:
		s.zw, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = s.zw
	default:
		f.Close()
		return nil, fmt.Errorf("invalid compression %q, must be none or zstd", cfg.Compression)
	}
	s.bw = bufio.NewWriter(w)

	switch cfg.Format {
	case FormatJSONL:
		s.enc = json.NewEncoder(s.bw)
	case FormatCBOR:
		s.enc = codec.NewEncoder(s.bw)
	default:
		s.closeFiles()
		return nil, fmt.Errorf("invalid format %q, must be jsonl or cbor", cfg.Format)
	}
	return s, nil
}

func (s *Sink) Name() string {
	return Name
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.cfg.Path
}

func (s *Sink) Write(ctx context.Context, ann *core.Annotation) error {
	if ann == nil {
		return fmt.Errorf("nil annotation")
	}
	if s.closed {
		return core.ErrSinkClosed
	}
	if err := s.enc.Encode(ann); err != nil {
		return fmt.Errorf("encode annotation: %w", err)
	}
	s.written.Add(1)
	return nil
}

// Written returns the number of annotations written.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Flush pushes buffered annotations through the compressor to the file.
func (s *Sink) Flush(ctx context.Context) error {
	if s.closed {
		return core.ErrSinkClosed
	}
	if err := s.bw.Flush(); err != nil {
		return err
	}
	if s.zw != nil {
		if err := s.zw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.bw.Flush()
	if cerr := s.closeFiles(); err == nil {
		err = cerr
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"path":    s.Path(),
		"written": s.Written(),
	}).Debug("file sink closed")
	return err
}

func (s *Sink) closeFiles() error {
	var err error
	if s.zw != nil {
		err = s.zw.Close()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
