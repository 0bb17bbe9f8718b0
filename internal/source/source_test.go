package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/core"
	"firestige.xyz/shtdecode/internal/source/pcap"
	"firestige.xyz/shtdecode/internal/source/saleae"
)

const csvExport = "type,start_time\nstart,0\nstop,0.1\n"

func pcapCapture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := pcap.NewWriter(&buf, 0)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(time.Unix(1, 0), pcap.Message{Addr: 0x70, Data: []byte{0xB0, 0x98}}))
	return buf.Bytes()
}

func TestNewExplicitFormat(t *testing.T) {
	src, err := New(strings.NewReader(csvExport), nil, FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, saleae.Name, src.Name())

	src, err = New(bytes.NewReader(pcapCapture(t)), nil, FormatPcap, "")
	require.NoError(t, err)
	assert.Equal(t, pcap.Name, src.Name())

	_, err = New(strings.NewReader(""), nil, "vcd", "")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestNewAutoSniffsPcap(t *testing.T) {
	src, err := New(bytes.NewReader(pcapCapture(t)), nil, FormatAuto, "-")
	require.NoError(t, err)
	assert.Equal(t, pcap.Name, src.Name())

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.EventStart, ev.Kind)

	src, err = New(strings.NewReader(csvExport), nil, FormatAuto, "-")
	require.NoError(t, err)
	assert.Equal(t, saleae.Name, src.Name())
}

func TestOpenByExtension(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "bus.pcap")
	csvPath := filepath.Join(dir, "bus.csv")
	require.NoError(t, os.WriteFile(pcapPath, pcapCapture(t), 0o644))
	require.NoError(t, os.WriteFile(csvPath, []byte(csvExport), 0o644))

	src, err := Open(config.SourceConfig{Format: FormatAuto, Path: pcapPath})
	require.NoError(t, err)
	assert.Equal(t, pcap.Name, src.Name())
	require.NoError(t, src.Close())

	src, err = Open(config.SourceConfig{Format: FormatAuto, Path: csvPath})
	require.NoError(t, err)
	assert.Equal(t, saleae.Name, src.Name())

	events := 0
	for {
		_, err := src.Next(context.Background())
		if err != nil {
			break
		}
		events++
	}
	assert.Equal(t, 2, events)
	require.NoError(t, src.Close())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(config.SourceConfig{Format: FormatAuto, Path: filepath.Join(t.TempDir(), "nope.csv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenWrongContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.pcap")
	require.NoError(t, os.WriteFile(path, []byte(csvExport), 0o644))

	_, err := Open(config.SourceConfig{Format: FormatAuto, Path: path})
	assert.Error(t, err)
}
