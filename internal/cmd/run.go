package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/internal/buildinfo"
	"github.com/y1024/agi-computer-control/pkg/collector"
	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/events"
	"github.com/y1024/agi-computer-control/pkg/screenshots"
	"github.com/y1024/agi-computer-control/pkg/session"
	"github.com/y1024/agi-computer-control/pkg/store"
	"github.com/y1024/agi-computer-control/pkg/supervisor"
	"github.com/y1024/agi-computer-control/pkg/upload"
)

func newRunCommand() command {
	return command{
		name:        "run",
		description: "Start capturing and uploading to the collector",
		configure: func(fs *pflag.FlagSet) {
			fs.String("output-dir", "", "Session directory (default: paths.output_dir)")
			fs.Bool("plan-only", false, "Print the resolved configuration without starting capture")
		},
		run: runWorker,
	}
}

// Unit names recorded in logs and the session manifest.
const (
	unitKeyboard    = "keyboard"
	unitPointer     = "pointer"
	unitScreenshots = "screenshots"
	unitUploader    = "uploader"
)

var (
	timeNow             = time.Now
	hostname            = os.Hostname
	newKeyboardListener = events.NewKeyboardListener
	newPointerListener  = events.NewPointerListener
	newCaptureProvider  = func(cfg config.Config) screenshots.CaptureProvider {
		return screenshots.NewDisplayProvider(screenshots.DisplayOptions{Display: cfg.Capture.Screenshots.Display, Clock: timeNow, Lookup: lookupEnv})
	}
	notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	}
)

func runWorker(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	cfg := ctx.Config
	if dir, _ := fs.GetString("output-dir"); dir != "" {
		cfg.Paths.OutputDir = dir
	}
	planOnly, _ := fs.GetBool("plan-only")
	ctx.Logger.Info("run command invoked", "plan_only", planOnly, "output_dir", cfg.Paths.OutputDir, "config_source", cfg.Source)

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}
	if planOnly {
		printRunPlan(cfg, stdout)
		return nil
	}

	layout := session.BuildLayout(cfg.Paths.OutputDir)
	st, err := store.Open(store.Options{Layout: layout, DrainMode: cfg.Upload.DrainMode, Clock: timeNow})
	if err != nil {
		return fmt.Errorf("prepare session directory: %w", err)
	}
	defer st.Close()

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	manifest := session.New(session.Options{
		CreatedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Config:     cfg,
	})
	started := timeNow().UTC()
	manifest.Status.State = "running"
	manifest.Status.Summary = "capture in progress"
	manifest.Status.StartedAt = &started
	journal, err := session.NewJournal(manifest, layout.ManifestPath)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Fprintf(stdout, "Remote URL: %s\n", cfg.RemoteURL)
	fmt.Fprintf(stdout, "Client Key: %s\n", cfg.ClientKey)
	fmt.Fprintf(stdout, "Session directory: %s\n", layout.Root)

	units, err := buildUnits(cfg, st, ctx, journal)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(supervisor.Options{
		Policy:      cfg.Supervisor.RestartPolicy,
		Backoff:     config.Duration(cfg.Supervisor.RestartBackoffSeconds),
		MaxBackoff:  config.Duration(cfg.Supervisor.RestartBackoffMaxSeconds),
		MaxRestarts: cfg.Supervisor.MaxRestarts,
		Clock:       timeNow,
		Logger:      ctx.Logger,
		Observe: func(ev supervisor.Event) {
			status := session.UnitStatus{Name: ev.Unit, State: ev.State, Restarts: ev.Restarts, UpdatedAt: ev.At}
			if ev.Err != nil {
				status.Message = ev.Err.Error()
			}
			if err := journal.Update(func(m *session.Manifest) { m.SetUnit(status) }); err != nil {
				ctx.Logger.Warn("manifest update failed", "unit", ev.Unit, "error", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("initialise supervisor: %w", err)
	}

	runCtx, stop := notifyContext(context.Background())
	defer stop()

	ctx.Logger.Info("starting units", "units", len(units), "restart_policy", cfg.Supervisor.RestartPolicy)
	runErr := sup.Run(runCtx, units)

	ended := timeNow().UTC()
	finalErr := journal.Update(func(m *session.Manifest) {
		m.Status.EndedAt = &ended
		if runErr != nil {
			m.Status.State = "failed"
			m.Status.Summary = runErr.Error()
			return
		}
		m.Status.State = "completed"
		m.Status.Summary = "capture stopped"
	})

	printUnitSummary(journal.Snapshot(), stdout)

	if runErr != nil {
		ctx.Logger.Error("worker stopped with failures", "error", runErr)
		if finalErr != nil {
			return fmt.Errorf("run worker units: %v (additionally failed to persist manifest: %w)", runErr, finalErr)
		}
		return fmt.Errorf("run worker units: %w", runErr)
	}
	if finalErr != nil {
		return fmt.Errorf("finalise manifest: %w", finalErr)
	}
	ctx.Logger.Info("worker stopped")
	return nil
}

func buildUnits(cfg config.Config, st *store.Store, app *AppContext, journal *session.Journal) ([]supervisor.Unit, error) {
	var units []supervisor.Unit

	disabled := func(name string) error {
		app.Logger.Info("unit disabled via config", "unit", name)
		return journal.Update(func(m *session.Manifest) {
			m.SetUnit(session.UnitStatus{Name: name, State: session.UnitStateDisabled, UpdatedAt: timeNow().UTC()})
		})
	}

	recorders := []struct {
		name     string
		enabled  bool
		listener func(events.ListenerOptions) events.Listener
		log      *store.Log
	}{
		{unitKeyboard, cfg.Capture.KeyboardEnabled, newKeyboardListener, st.KeyboardLog()},
		{unitPointer, cfg.Capture.PointerEnabled, newPointerListener, st.PointerLog()},
	}
	for _, rec := range recorders {
		if !rec.enabled {
			if err := disabled(rec.name); err != nil {
				return nil, err
			}
			continue
		}
		recorder, err := events.NewRecorder(events.RecorderOptions{
			Name:     rec.name,
			Listener: rec.listener(events.ListenerOptions{Clock: timeNow, Lookup: lookupEnv}),
			Log:      rec.log,
			Logger:   app.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise %s recorder: %w", rec.name, err)
		}
		units = append(units, supervisor.Unit{Name: rec.name, Run: recorder.Run})
	}

	if cfg.Capture.ScreenshotsEnabled {
		capturer, err := screenshots.NewCapturer(screenshots.Options{
			Interval: config.Duration(cfg.Capture.Screenshots.IntervalSeconds),
			Dir:      st.Layout().Root,
			Clock:    timeNow,
			Provider: newCaptureProvider(cfg),
			Logger:   app.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise screenshot capturer: %w", err)
		}
		units = append(units, supervisor.Unit{Name: unitScreenshots, Run: capturer.Run})
	} else if err := disabled(unitScreenshots); err != nil {
		return nil, err
	}

	client, err := collector.NewClient(collector.ClientConfig{
		BaseURL:   cfg.RemoteURL,
		ClientKey: cfg.ClientKey,
		Timeout:   config.Duration(cfg.Upload.TimeoutSeconds),
		RateLimit: cfg.Upload.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise collector client: %w", err)
	}
	uploader, err := upload.New(upload.Options{
		Collector:        client,
		Store:            st,
		PollInterval:     config.Duration(cfg.Upload.PollIntervalSeconds),
		Retention:        cfg.Upload.Retention,
		MaxPendingCycles: cfg.Upload.MaxPendingCycles,
		Logger:           app.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise uploader: %w", err)
	}
	units = append(units, supervisor.Unit{Name: unitUploader, Run: uploader.Run})

	return units, nil
}

func printRunPlan(cfg config.Config, stdout io.Writer) {
	fmt.Fprintf(stdout, "Resolved configuration (source: %s)\n", cfg.Source)
	fmt.Fprintf(stdout, "  remote_url: %s\n", cfg.RemoteURL)
	fmt.Fprintf(stdout, "  client_key: %s\n", cfg.ClientKey)
	fmt.Fprintf(stdout, "  paths.output_dir: %s\n", cfg.Paths.OutputDir)
	fmt.Fprintf(stdout, "  capture.keyboard_enabled: %t\n", cfg.Capture.KeyboardEnabled)
	fmt.Fprintf(stdout, "  capture.pointer_enabled: %t\n", cfg.Capture.PointerEnabled)
	fmt.Fprintf(stdout, "  capture.screenshots_enabled: %t\n", cfg.Capture.ScreenshotsEnabled)
	fmt.Fprintf(stdout, "  capture.screenshots.interval_seconds: %g\n", cfg.Capture.Screenshots.IntervalSeconds)
	fmt.Fprintf(stdout, "  upload.poll_interval_seconds: %g\n", cfg.Upload.PollIntervalSeconds)
	fmt.Fprintf(stdout, "  upload.drain_mode: %s\n", cfg.Upload.DrainMode)
	fmt.Fprintf(stdout, "  upload.retention: %s\n", cfg.Upload.Retention)
	fmt.Fprintf(stdout, "  supervisor.restart_policy: %s\n", cfg.Supervisor.RestartPolicy)
	fmt.Fprintf(stdout, "  logging.level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "  logging.format: %s\n", cfg.Logging.Format)
}

func printUnitSummary(man session.Manifest, stdout io.Writer) {
	fmt.Fprintf(stdout, "Session %s: %s\n", man.SessionID, man.Status.State)
	for _, unit := range man.Status.Units {
		fmt.Fprintf(stdout, "  - %s: state=%s", unit.Name, unit.State)
		if unit.Restarts > 0 {
			fmt.Fprintf(stdout, " restarts=%d", unit.Restarts)
		}
		if unit.Message != "" {
			fmt.Fprintf(stdout, " (%s)", unit.Message)
		}
		fmt.Fprintln(stdout)
	}
}
