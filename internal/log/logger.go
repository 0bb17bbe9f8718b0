package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/shtdecode/internal/config"
)

// Init configures the process logger. Stderr is always an output because
// stdout carries annotations.
func Init(cfg config.LogConfig) error {
	l, err := build(cfg, os.Stderr)
	if err != nil {
		return err
	}
	SetLogger(NewLogrusLogger(l))
	return nil
}

// build creates a logrus logger writing to base and any configured outputs.
func build(cfg config.LogConfig, base io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	writers := NewMultiWriter().Add(base)
	if cfg.Outputs.File.Enabled {
		if cfg.Outputs.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		writers.AddFileAppender(cfg.Outputs.File)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(writers)

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timeFormat(cfg),
			DisableColors:   true,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat(cfg)})
	case "pattern":
		f := &formatter{pattern: cfg.Pattern, time: timeFormat(cfg)}
		l.SetFormatter(f)
		l.SetReportCaller(f.needsCaller())
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be text, json or pattern)", cfg.Format)
	}

	return l, nil
}

func timeFormat(cfg config.LogConfig) string {
	if cfg.TimeFormat == "" {
		return "2006-01-02 15:04:05.000"
	}
	return cfg.TimeFormat
}
