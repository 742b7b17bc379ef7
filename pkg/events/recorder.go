package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/y1024/agi-computer-control/pkg/logging"
)

// Listener delivers input records from an event source until ctx ends.
type Listener interface {
	Listen(ctx context.Context, emit func(Record) error) error
}

// ListenerFunc adapts a function literal to the Listener interface.
type ListenerFunc func(ctx context.Context, emit func(Record) error) error

// Listen calls the underlying function.
func (f ListenerFunc) Listen(ctx context.Context, emit func(Record) error) error {
	return f(ctx, emit)
}

// Appender persists one encoded record per call.
type Appender interface {
	Append(line []byte) error
}

// RecorderOptions configures a recorder.
type RecorderOptions struct {
	Name     string
	Listener Listener
	Log      Appender
	Logger   *slog.Logger
}

// Recorder pipes records from a listener into an append-only log.
type Recorder struct {
	name     string
	listener Listener
	log      Appender
	logger   *slog.Logger
}

// NewRecorder validates options and constructs a recorder.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.Listener == nil {
		return nil, errors.New("listener must not be nil")
	}
	if opts.Log == nil {
		return nil, errors.New("log must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	name := opts.Name
	if name == "" {
		name = "events"
	}
	return &Recorder{name: name, listener: opts.Listener, log: opts.Log, logger: logger}, nil
}

// Run records until ctx ends or the listener fails. Each record is written as
// it arrives; nothing is buffered or dropped.
func (r *Recorder) Run(ctx context.Context) error {
	recorded := 0
	err := r.listener.Listen(ctx, func(rec Record) error {
		line, err := Encode(rec)
		if err != nil {
			return err
		}
		if err := r.log.Append(line); err != nil {
			return err
		}
		recorded++
		return nil
	})
	r.logger.Debug("recorder stopped", "unit", r.name, "records", recorded)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%s listener: %w", r.name, err)
	}
	return nil
}
