package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerRun(t *testing.T) {
	a := New(false)
	b := New(false)

	a.AnnotationsTotal.WithLabelValues("hi2c").Add(3)
	a.CRCErrorsTotal.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(a.AnnotationsTotal.WithLabelValues("hi2c")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CRCErrorsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.AnnotationsTotal.WithLabelValues("hi2c")))
}

func TestGatherNames(t *testing.T) {
	m := New(false)
	m.BusEventsTotal.WithLabelValues("start").Inc()
	m.SinkErrorsTotal.WithLabelValues("kafka").Inc()
	m.DecodeLatencySeconds.Observe(0.00001)
	m.HumidityRH.Set(45)

	n, err := testutil.GatherAndCount(m.Registry,
		"shtdecode_bus_events_total",
		"shtdecode_sink_errors_total",
		"shtdecode_decode_latency_seconds",
		"shtdecode_humidity_relative_percent",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRuntimeCollectors(t *testing.T) {
	m := New(true)
	n, err := testutil.GatherAndCount(m.Registry, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteTextfile(t *testing.T) {
	m := New(false)
	m.TemperatureC.Set(23.5)
	m.ResyncsTotal.Add(2)

	path := filepath.Join(t.TempDir(), "shtdecode.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shtdecode_temperature_celsius 23.5")
	assert.Contains(t, string(data), "shtdecode_decoder_resyncs_total 2")
}

func TestWriteTextfileBadDir(t *testing.T) {
	m := New(false)
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
