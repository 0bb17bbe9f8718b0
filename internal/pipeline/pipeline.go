// Package pipeline runs a bus event source through the transaction decoder
// and fans annotations out to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/core/decoder"
	"firestige.xyz/shtdecode/internal/log"
	"firestige.xyz/shtdecode/internal/metrics"
	"firestige.xyz/shtdecode/internal/sink"
	"firestige.xyz/shtdecode/internal/source"
)

const defaultBufferSize = 1024

// Config contains pipeline configuration.
type Config struct {
	Source          source.Source
	Decoder         *decoder.Decoder
	Sinks           []sink.Sink
	Metrics         *metrics.Metrics // optional
	MetricsTextfile string           // optional, requires Metrics
	BufferSize      int              // event channel capacity
}

// Pipeline is a single-use run: one reader goroutine feeding one process
// loop. The process loop is the only user of the decoder and the sinks.
type Pipeline struct {
	src      source.Source
	decoder  *decoder.Decoder
	sinks    []sink.Sink
	prom     *metrics.Metrics
	textfile string
	metrics  Metrics
	logger   log.Logger

	events  chan core.BusEvent
	readErr error
	wg      sync.WaitGroup
}

// New creates a pipeline. The pipeline takes ownership of the source and
// the sinks and closes them when Run returns.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.New(decoder.Config{})
	}
	return &Pipeline{
		src:      cfg.Source,
		decoder:  cfg.Decoder,
		sinks:    cfg.Sinks,
		prom:     cfg.Metrics,
		textfile: cfg.MetricsTextfile,
		logger:   log.GetLogger().WithField("source", cfg.Source.Name()),
		events:   make(chan core.BusEvent, cfg.BufferSize),
	}
}

// Run processes the source until EOF, a fatal source error, or ctx is
// cancelled. Sinks are flushed and closed in every case.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	p.logger.WithFields(map[string]interface{}{
		"address": fmt.Sprintf("%#x", p.decoder.Address()),
		"sinks":   len(p.sinks),
	}).Info("pipeline starting")

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.wg.Add(1)
	go p.readLoop(readCtx)

	p.processLoop(ctx)
	cancel()
	p.wg.Wait()

	stats := p.finish()

	err := p.readErr
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

// readLoop pulls events from the source into the channel.
func (p *Pipeline) readLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.events)

	for {
		ev, err := p.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, core.ErrMalformedRecord) {
				p.metrics.SourceErrors.Add(1)
				if p.prom != nil {
					p.prom.SourceErrorsTotal.Inc()
				}
				p.logger.WithError(err).Warn("skipping malformed record")
				continue
			}
			if ctx.Err() == nil {
				p.readErr = fmt.Errorf("source %s: %w", p.src.Name(), err)
			}
			return
		}

		p.metrics.Received.Add(1)
		select {
		case p.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-p.events:
			if !ok {
				return
			}
			p.processEvent(ctx, ev)
		}
	}
}

func (p *Pipeline) processEvent(ctx context.Context, ev core.BusEvent) {
	start := time.Now()
	if p.prom != nil {
		p.prom.BusEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		defer func() {
			p.prom.DecodeLatencySeconds.Observe(time.Since(start).Seconds())
		}()
	}

	ann, ok := p.decoder.Decode(ev)
	if !ok {
		return
	}

	p.metrics.Annotations.Add(1)
	if ann.Kind == core.AnnotationError {
		p.metrics.Errors.Add(1)
	}
	if p.prom != nil {
		p.prom.AnnotationsTotal.WithLabelValues(string(ann.Kind)).Inc()
		if m := ann.Measurement; m != nil && m.Valid() {
			p.prom.HumidityRH.Set(m.HumidityRH)
			p.prom.TemperatureC.Set(m.TemperatureC)
		}
	}
	if p.logger.IsTraceEnabled() {
		p.logger.WithFields(map[string]interface{}{
			"kind":  ann.Kind,
			"start": ann.Start,
			"end":   ann.End,
		}).Trace(ann.Data)
	}

	delivered := true
	for _, s := range p.sinks {
		if err := s.Write(ctx, &ann); err != nil {
			delivered = false
			p.sinkError(s, err, "sink write failed")
		}
	}
	if delivered {
		p.metrics.Delivered.Add(1)
	}
}

func (p *Pipeline) sinkError(s sink.Sink, err error, msg string) {
	p.metrics.SinkErrors.Add(1)
	if p.prom != nil {
		p.prom.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
	}
	p.logger.WithField("sink", s.Name()).WithError(err).Error(msg)
}

// recordCounter is implemented by sources that read container records,
// such as pcap.
type recordCounter interface {
	Records() uint64
}

// writeCounter is implemented by sinks that count delivered annotations.
type writeCounter interface {
	Written() uint64
}

// finish flushes and closes sinks, closes the source, and publishes stats.
func (p *Pipeline) finish() Stats {
	stats := p.metrics.snapshot()
	stats.Decoder = p.decoder.Stats()

	if open, n := p.decoder.InTransaction(); open {
		stats.Incomplete = true
		p.logger.WithField("bytes", n).Warn("capture ended inside an open transaction")
	}

	// Flush with a fresh context so a cancelled run still delivers what it decoded.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range p.sinks {
		if err := s.Flush(flushCtx); err != nil {
			p.sinkError(s, err, "sink flush failed")
		}
		if err := s.Close(); err != nil {
			p.sinkError(s, err, "sink close failed")
		}
		if wc, ok := s.(writeCounter); ok {
			p.logger.WithField("sink", s.Name()).WithField("written", wc.Written()).Debug("sink closed")
		}
	}
	stats.SinkErrors = p.metrics.SinkErrors.Load()

	if err := p.src.Close(); err != nil {
		p.logger.WithError(err).Warn("source close failed")
	}

	if p.prom != nil {
		p.prom.TransactionsDroppedTotal.Add(float64(stats.Decoder.Dropped))
		p.prom.ResyncsTotal.Add(float64(stats.Decoder.Resyncs))
		p.prom.CRCErrorsTotal.Add(float64(stats.Decoder.CRCErrors))
		if p.textfile != "" {
			if err := p.prom.WriteTextfile(p.textfile); err != nil {
				p.logger.WithError(err).Error("metrics textfile not written")
			}
		}
	}

	fields := map[string]interface{}{
		"events":        stats.Received,
		"annotations":   stats.Annotations,
		"errors":        stats.Errors,
		"dropped":       stats.Decoder.Dropped,
		"resyncs":       stats.Decoder.Resyncs,
		"crc_errors":    stats.Decoder.CRCErrors,
		"source_errors": stats.SourceErrors,
		"sink_errors":   stats.SinkErrors,
	}
	if rc, ok := p.src.(recordCounter); ok {
		fields["records"] = rc.Records()
	}
	p.logger.WithFields(fields).Info("pipeline stopped")
	return stats
}
