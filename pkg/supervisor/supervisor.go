// Package supervisor runs the worker's long lived units side by side and
// applies a restart policy when one of them fails.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/logging"
)

// Unit states reported to observers.
const (
	StateRunning    = "running"
	StateRestarting = "restarting"
	StateExited     = "exited"
	StateFailed     = "failed"
)

// Unit is a named, context bound activity.
type Unit struct {
	Name string
	Run  func(ctx context.Context) error
}

// Event describes a unit state transition.
type Event struct {
	Unit     string
	State    string
	Restarts int
	Err      error
	At       time.Time
}

// UnitError ties a failure to the unit that produced it.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// Options configure a supervisor.
type Options struct {
	Policy      string
	Backoff     time.Duration
	MaxBackoff  time.Duration
	MaxRestarts int
	Clock       func() time.Time
	Sleeper     func(context.Context, time.Duration) error
	Observe     func(Event)
	Logger      *slog.Logger
}

// Supervisor runs units concurrently until they all return.
type Supervisor struct {
	policy      string
	backoff     time.Duration
	maxBackoff  time.Duration
	maxRestarts int
	clock       func() time.Time
	sleeper     func(context.Context, time.Duration) error
	observe     func(Event)
	logger      *slog.Logger
}

// New validates options and returns a supervisor.
func New(opts Options) (*Supervisor, error) {
	policy := opts.Policy
	if policy == "" {
		policy = config.RestartContinue
	}
	switch policy {
	case config.RestartContinue, config.RestartBackoff, config.RestartStopAll:
	default:
		return nil, fmt.Errorf("unsupported restart policy %q", policy)
	}
	if opts.MaxRestarts < 0 {
		return nil, errors.New("max restarts must not be negative")
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	observe := opts.Observe
	if observe == nil {
		observe = func(Event) {}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		policy:      policy,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		maxRestarts: opts.MaxRestarts,
		clock:       clock,
		sleeper:     sleeper,
		observe:     observe,
		logger:      logger,
	}, nil
}

// Run starts every unit and blocks until all of them have returned. Under
// stop_all the first failure cancels the siblings and is returned; otherwise
// the failures of every unit that gave up are joined.
func (s *Supervisor) Run(ctx context.Context, units []Unit) error {
	if s.policy == config.RestartStopAll {
		g, gctx := errgroup.WithContext(ctx)
		for _, unit := range units {
			g.Go(func() error {
				return s.supervise(gctx, unit)
			})
		}
		return g.Wait()
	}

	var (
		mu       sync.Mutex
		failures []error
		g        errgroup.Group
	)
	for _, unit := range units {
		g.Go(func() error {
			if err := s.supervise(ctx, unit); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(failures...)
}

func (s *Supervisor) supervise(ctx context.Context, unit Unit) error {
	logger := s.logger.With("unit", unit.Name)
	restarts := 0
	for {
		s.emit(unit.Name, StateRunning, restarts, nil)
		logger.Info("unit started", "restarts", restarts)

		err := runOnce(ctx, unit)
		if ctx.Err() != nil || err == nil {
			s.emit(unit.Name, StateExited, restarts, nil)
			logger.Info("unit exited")
			return nil
		}

		s.emit(unit.Name, StateFailed, restarts, err)
		logger.Error("unit failed", "error", err, "restarts", restarts)

		if s.policy != config.RestartBackoff || (s.maxRestarts > 0 && restarts >= s.maxRestarts) {
			return &UnitError{Unit: unit.Name, Err: err}
		}

		wait := s.delay(restarts)
		restarts++
		s.emit(unit.Name, StateRestarting, restarts, err)
		logger.Warn("unit restarting", "backoff", wait.String(), "attempt", restarts)
		if err := s.sleeper(ctx, wait); err != nil {
			s.emit(unit.Name, StateExited, restarts, nil)
			return nil
		}
	}
}

// delay doubles the base backoff per prior restart, capped at the maximum.
func (s *Supervisor) delay(restarts int) time.Duration {
	wait := s.backoff
	for i := 0; i < restarts && wait < s.maxBackoff; i++ {
		wait *= 2
	}
	if wait > s.maxBackoff {
		wait = s.maxBackoff
	}
	return wait
}

func (s *Supervisor) emit(unit, state string, restarts int, err error) {
	s.observe(Event{Unit: unit, State: state, Restarts: restarts, Err: err, At: s.clock().UTC()})
}

// runOnce converts a panic inside a unit into an error so one unit cannot
// take the process down.
func runOnce(ctx context.Context, unit Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return unit.Run(ctx)
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
