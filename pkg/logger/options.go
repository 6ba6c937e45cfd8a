package logger

import (
	"fmt"
	"io"
	"log/slog"
)

// Format selects the handler a logger writes with.
type Format int

const (
	// FormatText is slog's key=value text handler.
	FormatText Format = iota

	// FormatPretty is the charmbracelet/log handler for terminals.
	FormatPretty

	// FormatJSON is slog's JSON handler, one object per record.
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatPretty:
		return "pretty"
	case FormatJSON:
		return "json"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat accepts the names printed by Format.String.
func ParseFormat(s string) (Format, error) {
	for _, f := range []Format{FormatText, FormatPretty, FormatJSON} {
		if s == f.String() {
			return f, nil
		}
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	level   slog.Level
	format  Format
	source  bool
	writers []io.Writer
}

// WithLevel sets the minimum level. The default is Info.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithDebug lowers the level to Debug when debug is set.
func WithDebug(debug bool) Option {
	return func(o *options) {
		if debug {
			o.level = slog.LevelDebug
		}
	}
}

// WithFormat selects the output handler.
func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

// WithWriter replaces the output. Several writers receive every record.
// The default is stderr.
func WithWriter(w ...io.Writer) Option {
	return func(o *options) { o.writers = w }
}

// WithSource adds the calling file and line to each record.
func WithSource(source bool) Option {
	return func(o *options) { o.source = source }
}
