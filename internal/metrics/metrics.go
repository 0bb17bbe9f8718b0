// Package metrics implements Prometheus metrics for the decode pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shtdecode"

// Metrics holds the collectors of one decode run. Each run owns its own
// registry so repeated runs in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	// BusEventsTotal counts bus events read from the source by kind
	BusEventsTotal *prometheus.CounterVec

	// AnnotationsTotal counts emitted annotations by kind (hi2c, error)
	AnnotationsTotal *prometheus.CounterVec

	// TransactionsDroppedTotal counts transactions not addressed to the sensor
	TransactionsDroppedTotal prometheus.Counter

	// ResyncsTotal counts decoder resynchronizations
	ResyncsTotal prometheus.Counter

	// CRCErrorsTotal counts measurements rejected by CRC
	CRCErrorsTotal prometheus.Counter

	// SourceErrorsTotal counts malformed source records that were skipped
	SourceErrorsTotal prometheus.Counter

	// SinkErrorsTotal counts failed sink writes by sink name
	SinkErrorsTotal *prometheus.CounterVec

	// DecodeLatencySeconds measures per-event decode and dispatch latency
	DecodeLatencySeconds prometheus.Histogram

	// HumidityRH and TemperatureC hold the last valid measurement
	HumidityRH   prometheus.Gauge
	TemperatureC prometheus.Gauge
}

// New creates a registry with all pipeline collectors. withRuntime adds
// the Go runtime and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		BusEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Total number of bus events read from the source",
		}, []string{"kind"}),
		AnnotationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotations_total",
			Help:      "Total number of annotations emitted",
		}, []string{"kind"}),
		TransactionsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_dropped_total",
			Help:      "Transactions closed without addressing the sensor",
		}),
		ResyncsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_resyncs_total",
			Help:      "Address or data events seen without a preceding start",
		}),
		CRCErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crc_errors_total",
			Help:      "Measurements rejected by CRC",
		}),
		SourceErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Malformed source records skipped",
		}),
		SinkErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Total number of failed sink writes",
		}, []string{"sink"}),
		DecodeLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_latency_seconds",
			Help:      "Latency of decoding and dispatching one bus event in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0000001, 2, 20), // 100ns to ~50ms
		}),
		HumidityRH: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_relative_percent",
			Help:      "Last valid relative humidity reading",
		}),
		TemperatureC: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last valid temperature reading",
		}),
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
