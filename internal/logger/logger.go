// Package logger builds the process logger for trv.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

// New creates a zerolog.Logger writing to stderr so that command output on
// stdout stays machine readable.
func New(cfg models.LogConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg models.LogConfig, out io.Writer) zerolog.Logger {
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", "trv").
		Logger().
		Level(parseLevel(cfg.Level))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
