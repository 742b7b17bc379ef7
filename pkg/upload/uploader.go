// Package upload runs the worker's periodic delivery loop: probe the
// collector, drain the local store, transmit the batch and purge.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/y1024/agi-computer-control/pkg/collector"
	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/logging"
	"github.com/y1024/agi-computer-control/pkg/store"
)

// Collector is the subset of the collector client the uploader drives.
type Collector interface {
	Ping(ctx context.Context) error
	PostMouse(ctx context.Context, data string) error
	PostKeyboard(ctx context.Context, data string) error
	PostScreenshot(ctx context.Context, filename string, image []byte) error
}

// Store is the local data the uploader drains and clears.
type Store interface {
	Drain() (store.Batch, error)
	Discard(store.Batch) error
	PurgeAll() error
	DrainMode() string
}

// Outcome classifies a finished cycle.
type Outcome string

const (
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeDelivered   Outcome = "delivered"
	OutcomeFailed      Outcome = "failed"
)

// Options configures an uploader.
type Options struct {
	Collector        Collector
	Store            Store
	PollInterval     time.Duration
	Retention        string
	MaxPendingCycles int
	Sleeper          func(context.Context, time.Duration) error
	NewCycleID       func() string
	Logger           *slog.Logger
}

// CycleReport summarises one upload cycle. Rejected counts requests the
// collector answered with a non-2xx status that the cycle carried on past.
type CycleReport struct {
	ID          string
	Outcome     Outcome
	Requests    int
	Rejected    int
	Screenshots int
	Purged      bool
	Retained    bool
	Err         error
}

// Uploader drives upload cycles against a collector.
type Uploader struct {
	collector    Collector
	store        Store
	pollInterval time.Duration
	retention    string
	maxPending   int
	sleeper      func(context.Context, time.Duration) error
	newCycleID   func() string
	logger       *slog.Logger

	// consecutive failed cycles under on_delivery retention
	failures int
}

// New validates options and constructs an uploader.
func New(opts Options) (*Uploader, error) {
	if opts.Collector == nil {
		return nil, errors.New("collector must not be nil")
	}
	if opts.Store == nil {
		return nil, errors.New("store must not be nil")
	}
	if opts.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	retention := opts.Retention
	if retention == "" {
		retention = config.RetainAlways
	}
	if retention != config.RetainAlways && retention != config.RetainOnDelivery {
		return nil, fmt.Errorf("unsupported retention %q", retention)
	}
	maxPending := opts.MaxPendingCycles
	if maxPending <= 0 {
		maxPending = 1
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	newCycleID := opts.NewCycleID
	if newCycleID == nil {
		newCycleID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Uploader{
		collector:    opts.Collector,
		store:        opts.Store,
		pollInterval: opts.PollInterval,
		retention:    retention,
		maxPending:   maxPending,
		sleeper:      sleeper,
		newCycleID:   newCycleID,
		logger:       logger,
	}, nil
}

// Run waits one poll interval before every cycle and repeats until ctx ends.
// Cycle failures are logged, never returned.
func (u *Uploader) Run(ctx context.Context) error {
	for {
		if err := u.sleeper(ctx, u.pollInterval); err != nil {
			return err
		}
		report := u.RunCycle(ctx)
		u.logReport(report)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RunCycle performs a single liveness, drain, transmit and purge pass.
func (u *Uploader) RunCycle(ctx context.Context) (report CycleReport) {
	report.ID = u.newCycleID()
	ctx = collector.WithCycle(ctx, report.ID)

	var batch store.Batch
	drained := false
	defer func() {
		u.finish(&report, batch, drained)
	}()

	if err := u.collector.Ping(ctx); err != nil {
		if !errors.Is(err, collector.ErrUnexpectedStatus) {
			report.Outcome = OutcomeUnreachable
			report.Err = err
			return report
		}
		// any HTTP answer means the collector is up
		u.logger.Warn("collector answered ping with an error status", "unit", "uploader", "cycle", report.ID, "error", err)
	}

	var err error
	batch, err = u.store.Drain()
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = fmt.Errorf("drain: %w", err)
		return report
	}
	drained = true
	report.Screenshots = len(batch.Screenshots)

	if err := u.transmit(ctx, batch, &report); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}
	report.Outcome = OutcomeDelivered
	return report
}

func (u *Uploader) transmit(ctx context.Context, batch store.Batch, report *CycleReport) error {
	if err := u.send(ctx, report, "mouse", func() error { return u.collector.PostMouse(ctx, batch.Pointer) }); err != nil {
		return err
	}
	if err := u.send(ctx, report, "keyboard", func() error { return u.collector.PostKeyboard(ctx, batch.Keyboard) }); err != nil {
		return err
	}
	for _, artifact := range batch.Screenshots {
		data, err := os.ReadFile(artifact.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", artifact.Name, err)
		}
		if err := u.send(ctx, report, artifact.Name, func() error {
			return u.collector.PostScreenshot(ctx, artifact.Name, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// send issues one request. Transport errors abort the cycle. A non-2xx
// answer aborts it only under on_delivery retention, where the batch must
// be confirmed before it is dropped; otherwise it is logged and skipped.
func (u *Uploader) send(ctx context.Context, report *CycleReport, what string, request func() error) error {
	err := request()
	if err == nil {
		report.Requests++
		return nil
	}
	if errors.Is(err, collector.ErrUnexpectedStatus) && u.retention == config.RetainAlways {
		report.Requests++
		report.Rejected++
		u.logger.Warn("collector rejected upload", "unit", "uploader", "cycle", report.ID, "payload", what, "error", err)
		return nil
	}
	return fmt.Errorf("send %s: %w", what, err)
}

// finish clears local state according to the retention policy. It runs on
// every exit path of a cycle.
func (u *Uploader) finish(report *CycleReport, batch store.Batch, drained bool) {
	var err error
	switch {
	case u.retention == config.RetainOnDelivery && report.Outcome != OutcomeDelivered:
		u.failures++
		if u.failures < u.maxPending {
			report.Retained = true
			return
		}
		u.logger.Warn("pending data dropped after repeated delivery failures",
			"unit", "uploader",
			"cycle", report.ID,
			"failures", u.failures,
		)
		u.failures = 0
		err = u.store.PurgeAll()
	case drained && u.store.DrainMode() == config.DrainRotate:
		u.failures = 0
		err = u.store.Discard(batch)
	case drained && u.retention == config.RetainOnDelivery:
		u.failures = 0
		err = u.store.Discard(batch)
	default:
		u.failures = 0
		err = u.store.PurgeAll()
	}
	report.Purged = err == nil
	if err != nil {
		u.logger.Error("purge failed", "unit", "uploader", "cycle", report.ID, "error", err)
	}
}

func (u *Uploader) logReport(report CycleReport) {
	attrs := []any{
		"unit", "uploader",
		"cycle", report.ID,
		"outcome", string(report.Outcome),
		"requests", report.Requests,
		"screenshots", report.Screenshots,
		"purged", report.Purged,
	}
	if report.Rejected > 0 {
		attrs = append(attrs, "rejected", report.Rejected)
	}
	switch report.Outcome {
	case OutcomeUnreachable:
		u.logger.Warn("collector unreachable, waiting for it to come alive", append(attrs, "error", report.Err)...)
	case OutcomeFailed:
		u.logger.Error("upload cycle failed", append(attrs, "error", report.Err, "retained", report.Retained)...)
	default:
		u.logger.Info("upload cycle delivered", attrs...)
	}
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
