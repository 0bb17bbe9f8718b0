package pipeline

import (
	"firestige.xyz/shtdecode/internal/core/decoder"
	"firestige.xyz/shtdecode/internal/metrics"
	"firestige.xyz/shtdecode/internal/sink"
	"firestige.xyz/shtdecode/internal/source"
)

// Builder provides a fluent interface for building pipelines.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BufferSize: defaultBufferSize,
		},
	}
}

// WithSource sets the bus event source.
func (b *Builder) WithSource(src source.Source) *Builder {
	b.config.Source = src
	return b
}

// WithDecoder sets the transaction decoder.
func (b *Builder) WithDecoder(d *decoder.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithSinks appends annotation sinks.
func (b *Builder) WithSinks(sinks ...sink.Sink) *Builder {
	b.config.Sinks = append(b.config.Sinks, sinks...)
	return b
}

// WithMetrics enables Prometheus collectors and, if path is set, a
// textfile written when the run ends.
func (b *Builder) WithMetrics(m *metrics.Metrics, path string) *Builder {
	b.config.Metrics = m
	b.config.MetricsTextfile = path
	return b
}

// WithBufferSize sets the event channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
