// Package sink delivers decoded annotations to their consumers.
package sink

import (
	"context"
	"fmt"
	"io"
	"time"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/sink/console"
	"firestige.xyz/shtdecode/internal/sink/file"
	"firestige.xyz/shtdecode/internal/sink/kafka"
)

// Sink consumes annotations. Write is called from a single goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, ann *core.Annotation) error
	Flush(ctx context.Context) error
	Close() error
}

// New builds a sink from a validated config. Console sinks write to stdout.
func New(cfg config.SinkConfig, stdout io.Writer) (Sink, error) {
	switch cfg.Type {
	case console.Name:
		return console.New(stdout, cfg.Format)

	case file.Name:
		return file.New(file.Config{
			Path:        cfg.Path,
			Format:      cfg.Format,
			Compression: cfg.Compression,
		})

	case kafka.Name:
		kc := kafka.Config{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			BatchSize:   cfg.BatchSize,
			Compression: cfg.Compression,
			MaxAttempts: cfg.MaxAttempts,
			Format:      cfg.Format,
		}
		if cfg.BatchTimeout != "" {
			d, err := time.ParseDuration(cfg.BatchTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid batch_timeout: %w", err)
			}
			kc.BatchTimeout = d
		}
		return kafka.New(kc)

	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedSink, cfg.Type)
	}
}

// NewAll builds every configured sink. On failure the sinks built so far
// are closed.
func NewAll(cfgs []config.SinkConfig, stdout io.Writer) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := New(c, stdout)
		if err != nil {
			CloseAll(sinks)
			return nil, fmt.Errorf("sinks[%d] (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// CloseAll closes every sink and returns the first error.
func CloseAll(sinks []Sink) error {
	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", s.Name(), err)
		}
	}
	return first
}
