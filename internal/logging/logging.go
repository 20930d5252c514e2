// Package logging builds the slog and zerolog loggers used across the
// program and the sinks they write to.
package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, prefix string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", prefix, sessionStart.Format("20060102_150405")),
	)
}

// NewGraylogWriter connects a GELF UDP writer to address.
func NewGraylogWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = ServiceName
	return w, nil
}

// zerologLevel converts a string log level to zerolog.Level.
func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewZerolog builds the zerolog logger used by the storage layer: console
// output to out, plus the graylog writer when given.
func NewZerolog(out io.Writer, level string, graylog io.Writer) zerolog.Logger {
	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	}
	if graylog != nil {
		writers = append(writers, graylog)
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Str("component", "storage").
		Logger()
}
