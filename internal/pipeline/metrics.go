package pipeline

import (
	"sync/atomic"

	"firestige.xyz/shtdecode/internal/core/decoder"
)

// Metrics contains per-run counters. Received and SourceErrors are written
// by the reader goroutine, the rest by the process loop.
type Metrics struct {
	Received     atomic.Uint64
	SourceErrors atomic.Uint64
	Annotations  atomic.Uint64
	Errors       atomic.Uint64 // annotations of kind "error"
	Delivered    atomic.Uint64
	SinkErrors   atomic.Uint64
}

// Stats is a snapshot of a finished or running pipeline.
type Stats struct {
	Received     uint64
	SourceErrors uint64
	Annotations  uint64
	Errors       uint64
	Delivered    uint64
	SinkErrors   uint64
	Decoder      decoder.Stats
	Incomplete   bool // capture ended inside an open transaction
}

func (m *Metrics) snapshot() Stats {
	return Stats{
		Received:     m.Received.Load(),
		SourceErrors: m.SourceErrors.Load(),
		Annotations:  m.Annotations.Load(),
		Errors:       m.Errors.Load(),
		Delivered:    m.Delivered.Load(),
		SinkErrors:   m.SinkErrors.Load(),
	}
}
