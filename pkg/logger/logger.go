// Package logger builds the *slog.Logger instances used across frames:
// pretty output on terminals, JSON for services and log files, and a
// fan-out logger combining the two.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// New creates a logger. Without options it writes text records at Info level
// to stderr.
func New(opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}
	return slog.New(o.handler())
}

func (o *options) writer() io.Writer {
	switch len(o.writers) {
	case 0:
		return os.Stderr
	case 1:
		return o.writers[0]
	}
	return io.MultiWriter(o.writers...)
}

func (o *options) handler() slog.Handler {
	w := o.writer()
	hopts := &slog.HandlerOptions{Level: o.level, AddSource: o.source}

	switch o.format {
	case FormatJSON:
		return slog.NewJSONHandler(w, hopts)
	case FormatPretty:
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(o.level),
			ReportTimestamp: true,
			ReportCaller:    o.source,
			TimeFormat:      time.Kitchen,
		})
	}
	return slog.NewTextHandler(w, hopts)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OpenFile returns a JSON logger appending to path, creating parent
// directories as needed. Close the returned file when done.
func OpenFile(path string, opts ...Option) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	opts = append(opts, WithFormat(FormatJSON), WithWriter(f))
	return New(opts...), f, nil
}
