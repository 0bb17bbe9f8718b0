// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/shtdecode/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `shtdecode:` root key in YAML.
type Config struct {
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Sinks   []SinkConfig  `mapstructure:"sinks" yaml:"sinks"`
	Sim     SimConfig     `mapstructure:"sim" yaml:"sim"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Decoder ───

// DecoderConfig configures the transaction decoder.
type DecoderConfig struct {
	Address uint16 `mapstructure:"address" yaml:"address"` // 7-bit target address, default 0x70
}

// ─── Source ───

// SourceConfig selects the bus event source.
type SourceConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // auto | csv | pcap
	Path   string `mapstructure:"path" yaml:"path"`     // "-" = stdin
	Buffer int    `mapstructure:"buffer" yaml:"buffer"` // Event channel capacity
}

// ─── Sinks ───

// SinkConfig configures one annotation sink. Only the fields relevant to Type are read.
type SinkConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // console | file | kafka

	// console, file, kafka
	Format string `mapstructure:"format" yaml:"format,omitempty"` // console: text | json; file: jsonl | cbor; kafka: json | cbor

	// file
	Path        string `mapstructure:"path" yaml:"path,omitempty"`
	Compression string `mapstructure:"compression" yaml:"compression,omitempty"` // none | zstd (file); none | gzip | snappy | lz4 | zstd (kafka)

	// kafka
	Brokers      []string `mapstructure:"brokers" yaml:"brokers,omitempty"`
	Topic        string   `mapstructure:"topic" yaml:"topic,omitempty"`
	BatchSize    int      `mapstructure:"batch_size" yaml:"batch_size,omitempty"`
	BatchTimeout string   `mapstructure:"batch_timeout" yaml:"batch_timeout,omitempty"`
	MaxAttempts  int      `mapstructure:"max_attempts" yaml:"max_attempts,omitempty"`
}

// ─── Simulator ───

// SimConfig configures the bus simulator.
type SimConfig struct {
	Cycles       int     `mapstructure:"cycles" yaml:"cycles"`
	BusHz        int     `mapstructure:"bus_hz" yaml:"bus_hz"`
	HumidityRH   float64 `mapstructure:"humidity_rh" yaml:"humidity_rh"`
	TemperatureC float64 `mapstructure:"temperature_c" yaml:"temperature_c"`
	ChipID       uint16  `mapstructure:"chip_id" yaml:"chip_id"`
	PcapOut      string  `mapstructure:"pcap_out" yaml:"pcap_out,omitempty"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"` // Written once the pipeline finishes; empty = disabled
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // text / json / pattern
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stderr is always enabled.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `shtdecode: ...`.
type configRoot struct {
	Shtdecode Config `mapstructure:"shtdecode"`
}

// Load loads configuration from file. An empty path yields defaults only.
// Env vars use the SHTDECODE_ prefix (e.g., SHTDECODE_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `shtdecode.` key prefix maps to `SHTDECODE_` via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Shtdecode

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("shtdecode.decoder.address", 0x70)

	v.SetDefault("shtdecode.source.format", "auto")
	v.SetDefault("shtdecode.source.path", "-")
	v.SetDefault("shtdecode.source.buffer", 1024)

	v.SetDefault("shtdecode.sim.cycles", 3)
	v.SetDefault("shtdecode.sim.bus_hz", 100000)
	v.SetDefault("shtdecode.sim.humidity_rh", 45.0)
	v.SetDefault("shtdecode.sim.temperature_c", 23.5)
	v.SetDefault("shtdecode.sim.chip_id", 0x0887)

	v.SetDefault("shtdecode.metrics.textfile", "")

	v.SetDefault("shtdecode.log.level", "info")
	v.SetDefault("shtdecode.log.format", "text")
	v.SetDefault("shtdecode.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("shtdecode.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("shtdecode.log.outputs.file.enabled", false)
	v.SetDefault("shtdecode.log.outputs.file.path", "/var/log/shtdecode/shtdecode.log")
	v.SetDefault("shtdecode.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("shtdecode.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("shtdecode.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("shtdecode.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	case "pattern":
		if cfg.Log.Pattern == "" {
			return fmt.Errorf("%w: log.pattern is required when log.format=pattern", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid log format: %s (must be text/json/pattern)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Decoder ──
	if cfg.Decoder.Address == 0 {
		cfg.Decoder.Address = 0x70
	}
	if cfg.Decoder.Address > 0x3FF {
		return fmt.Errorf("%w: decoder.address %#x exceeds 10 bits", core.ErrConfigInvalid, cfg.Decoder.Address)
	}

	// ── Source ──
	if cfg.Source.Path == "" {
		cfg.Source.Path = "-"
	}
	if cfg.Source.Format == "" {
		cfg.Source.Format = "auto"
	}
	switch cfg.Source.Format {
	case "auto", "csv", "pcap":
	default:
		return fmt.Errorf("%w: unsupported source.format: %s (must be auto/csv/pcap)", core.ErrConfigInvalid, cfg.Source.Format)
	}
	if cfg.Source.Buffer <= 0 {
		cfg.Source.Buffer = 1024
	}

	// ── Sinks ──
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Type: "console", Format: "text"}}
	}
	for i := range cfg.Sinks {
		if err := cfg.Sinks[i].validate(); err != nil {
			return fmt.Errorf("%w: sinks[%d]: %w", core.ErrConfigInvalid, i, err)
		}
	}

	// ── Simulator ──
	if cfg.Sim.Cycles < 0 {
		return fmt.Errorf("%w: sim.cycles must not be negative", core.ErrConfigInvalid)
	}
	if cfg.Sim.BusHz <= 0 {
		cfg.Sim.BusHz = 100000
	}
	if cfg.Sim.HumidityRH < 0 || cfg.Sim.HumidityRH > 100 {
		return fmt.Errorf("%w: sim.humidity_rh %.2f out of range 0-100", core.ErrConfigInvalid, cfg.Sim.HumidityRH)
	}
	if cfg.Sim.TemperatureC < -45 || cfg.Sim.TemperatureC > 130 {
		return fmt.Errorf("%w: sim.temperature_c %.2f out of range -45-130", core.ErrConfigInvalid, cfg.Sim.TemperatureC)
	}

	return nil
}

// validate checks one sink and fills per-type defaults.
func (s *SinkConfig) validate() error {
	switch s.Type {
	case "console":
		if s.Format == "" {
			s.Format = "text"
		}
		if s.Format != "text" && s.Format != "json" {
			return fmt.Errorf("invalid console format %q (must be text/json)", s.Format)
		}

	case "file":
		if s.Path == "" {
			return fmt.Errorf("file sink requires 'path'")
		}
		if s.Format == "" {
			s.Format = "jsonl"
			if strings.HasSuffix(strings.TrimSuffix(s.Path, ".zst"), ".cbor") {
				s.Format = "cbor"
			}
		}
		if s.Format != "jsonl" && s.Format != "cbor" {
			return fmt.Errorf("invalid file format %q (must be jsonl/cbor)", s.Format)
		}
		if s.Compression == "" {
			s.Compression = "none"
			if filepath.Ext(s.Path) == ".zst" {
				s.Compression = "zstd"
			}
		}
		if s.Compression != "none" && s.Compression != "zstd" {
			return fmt.Errorf("invalid file compression %q (must be none/zstd)", s.Compression)
		}

	case "kafka":
		if len(s.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires 'brokers'")
		}
		if s.Topic == "" {
			return fmt.Errorf("kafka sink requires 'topic'")
		}
		if s.Compression == "" {
			s.Compression = "snappy"
		}
		if s.Format == "" {
			s.Format = "json"
		}
		if s.Format != "json" && s.Format != "cbor" {
			return fmt.Errorf("invalid kafka format %q (must be json/cbor)", s.Format)
		}

	default:
		return fmt.Errorf("%w: %q", core.ErrUnsupportedSink, s.Type)
	}
	return nil
}
