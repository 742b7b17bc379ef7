package screenshots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/y1024/agi-computer-control/pkg/logging"
	"github.com/y1024/agi-computer-control/pkg/session"
)

// Options configure the screenshot capturer.
type Options struct {
	Interval time.Duration
	Dir      string
	Clock    func() time.Time
	Provider CaptureProvider
	Sleeper  func(context.Context, time.Duration) error
	Logger   *slog.Logger
}

// Capturer writes one full display still per interval into the session
// directory until its context ends.
type Capturer struct {
	interval time.Duration
	dir      string
	clock    func() time.Time
	provider CaptureProvider
	sleeper  func(context.Context, time.Duration) error
	logger   *slog.Logger
}

// NewCapturer validates options and returns a capturer instance.
func NewCapturer(opts Options) (*Capturer, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if opts.Dir == "" {
		return nil, errors.New("destination directory must not be empty")
	}
	if opts.Provider == nil {
		return nil, errors.New("capture provider must not be nil")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Capturer{
		interval: opts.Interval,
		dir:      opts.Dir,
		clock:    clock,
		provider: opts.Provider,
		sleeper:  sleeper,
		logger:   logger,
	}, nil
}

// Run sleeps for the interval, captures, and repeats. Any capture or write
// failure ends the loop with an error.
func (c *Capturer) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure destination: %w", err)
	}
	for {
		if err := c.sleeper(ctx, c.interval); err != nil {
			return err
		}
		if _, err := c.CaptureOnce(ctx); err != nil {
			return err
		}
	}
}

// CaptureOnce grabs a single frame and returns the path it was written to.
func (c *Capturer) CaptureOnce(ctx context.Context) (string, error) {
	capture, err := c.provider.Grab(ctx)
	if err != nil {
		return "", fmt.Errorf("capture frame: %w", err)
	}
	if len(capture.PNG) == 0 {
		return "", errors.New("capture provider returned empty PNG data")
	}

	timestamp := capture.Metadata.CapturedAt
	if timestamp.IsZero() {
		timestamp = c.clock()
	}
	name := session.ScreenshotName(timestamp)
	path := filepath.Join(c.dir, name)
	if err := writeAtomic(path, capture.PNG); err != nil {
		return "", fmt.Errorf("write screenshot %q: %w", name, err)
	}
	c.logger.Debug("screenshot captured",
		"unit", "screenshots",
		"file", name,
		"bytes", len(capture.PNG),
		"width", capture.Metadata.Width,
		"height", capture.Metadata.Height,
	)
	return path, nil
}

// writeAtomic stages data beside path under a name the uploader ignores and
// renames it into place once complete.
func writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
