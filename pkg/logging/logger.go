// Package logging builds the slog loggers shared by the worker and the
// collector.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/y1024/agi-computer-control/pkg/config"
)

// Options describe how to configure a logger instance.
type Options struct {
	Level  string
	Format string
	Output io.Writer
	// Component, when set, is attached to every record as "component".
	Component string
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New creates a structured logger writing JSON or console records.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	format, err := config.NormalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: utcTimestamps}

	var handler slog.Handler = slog.NewJSONHandler(out, handlerOpts)
	if format == "console" {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger, nil
}

// ParseLevel maps a configured level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	normalized, err := config.NormalizeLogLevel(name)
	if err != nil {
		return 0, err
	}
	level, ok := levels[normalized]
	if !ok {
		return 0, fmt.Errorf("unhandled log level %q", normalized)
	}
	return level, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// utcTimestamps renders record times in UTC with millisecond precision.
func utcTimestamps(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
		attr.Value = slog.StringValue(attr.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	return attr
}
