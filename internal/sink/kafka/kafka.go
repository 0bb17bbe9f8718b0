// Package kafka publishes annotations to a Kafka topic with batching and
// compression.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/shtdecode/internal/codec"
	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/log"
)

const Name = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3

	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Config represents Kafka sink configuration.
type Config struct {
	Brokers      []string      // required
	Topic        string        // required
	BatchSize    int           // optional, default 100
	BatchTimeout time.Duration // optional, default 100ms
	Compression  string        // optional: none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           // optional, default 3
	Format       string        // optional: json|cbor message values, default json
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink sends annotations to Kafka. Messages are keyed by annotation kind so
// that errors and decoded results land on stable partitions.
type Sink struct {
	cfg    Config
	writer messageWriter
	closed bool

	reported atomic.Uint64
	errors   atomic.Uint64
}

// New creates a Kafka sink. No connection is made until the first write.
func New(cfg Config) (*Sink, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	compression, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        cfg.BatchSize,
		BatchTimeout:     cfg.BatchTimeout,
		MaxAttempts:      cfg.MaxAttempts,
		CompressionCodec: compression,
		Async:            false,
	})

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":       cfg.Brokers,
		"topic":         cfg.Topic,
		"batch_size":    cfg.BatchSize,
		"batch_timeout": cfg.BatchTimeout,
		"compression":   cfg.Compression,
		"format":        cfg.Format,
	}).Debug("kafka sink created")

	return newSink(cfg, w), nil
}

func newSink(cfg Config, w messageWriter) *Sink {
	return &Sink{cfg: cfg, writer: w}
}

func (c Config) withDefaults() (Config, error) {
	if len(c.Brokers) == 0 {
		return c, fmt.Errorf("brokers is required")
	}
	if c.Topic == "" {
		return c, fmt.Errorf("topic is required")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.Compression == "" {
		c.Compression = defaultCompression
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	switch c.Format {
	case "":
		c.Format = FormatJSON
	case FormatJSON, FormatCBOR:
	default:
		return c, fmt.Errorf("invalid format %q, must be json or cbor", c.Format)
	}
	return c, nil
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	case "zstd":
		return compress.Zstd.Codec(), nil
	default:
		return nil, fmt.Errorf("invalid compression type: %s", name)
	}
}

func (s *Sink) Name() string {
	return Name
}

// Write sends one annotation. The writer is synchronous, so a nil error
// means the broker acknowledged the batch containing it.
func (s *Sink) Write(ctx context.Context, ann *core.Annotation) error {
	if ann == nil {
		return fmt.Errorf("nil annotation")
	}
	if s.closed {
		return core.ErrSinkClosed
	}

	msg, err := message(ann, s.cfg.Format)
	if err != nil {
		s.errors.Add(1)
		return fmt.Errorf("serialize annotation failed: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	s.reported.Add(1)
	return nil
}

func message(ann *core.Annotation, format string) (kafka.Message, error) {
	var (
		value       []byte
		err         error
		contentType = "application/json"
	)
	if format == FormatCBOR {
		value, err = codec.Marshal(ann)
		contentType = "application/cbor"
	} else {
		value, err = json.Marshal(ann)
	}
	if err != nil {
		return kafka.Message{}, err
	}

	direction := "write"
	if ann.Read {
		direction = "read"
	}
	headers := []kafka.Header{
		{Key: "kind", Value: []byte(ann.Kind)},
		{Key: "direction", Value: []byte(direction)},
		{Key: "content-type", Value: []byte(contentType)},
	}
	if ann.Measurement != nil {
		headers = append(headers, kafka.Header{Key: "payload", Value: []byte("measurement")})
	}

	return kafka.Message{
		Key:     []byte(ann.Kind),
		Value:   value,
		Headers: headers,
	}, nil
}

// Flush is a no-op: WriteMessages returns only after the batch is sent.
func (s *Sink) Flush(ctx context.Context) error {
	return nil
}

func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.writer.Close()
	reported, failed := s.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"topic":          s.cfg.Topic,
		"total_reported": reported,
		"total_errors":   failed,
	}).Info("kafka sink closed")
	if err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Written returns the number of delivered messages.
func (s *Sink) Written() uint64 {
	return s.reported.Load()
}

// Stats returns delivered and failed message counts.
func (s *Sink) Stats() (reported, failed uint64) {
	return s.reported.Load(), s.errors.Load()
}
