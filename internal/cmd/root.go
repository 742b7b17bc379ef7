package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/internal/buildinfo"
	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/logging"
)

type command struct {
	name        string
	description string
	configure   func(fs *pflag.FlagSet)
	run         func(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error
	skipInit    bool
}

// AppContext exposes lazily initialised configuration and logging facilities.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
}

type RootCommand struct {
	name           string
	defaultCommand string
	commands       map[string]command
	stdout         io.Writer
	stderr         io.Writer
	appCtx         *AppContext
	configPath     string
	logLevel       string
	logFormat      string
}

// NewRootCommand constructs the CLI dispatcher for the named binary.
func NewRootCommand(name string) *RootCommand {
	rc := &RootCommand{
		name:     name,
		commands: make(map[string]command),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}

	rc.register(newRunCommand())
	rc.register(newServeCommand())
	rc.register(newDoctorCommand())
	rc.register(newPurgeCommand())
	rc.register(newVersionCommand())

	return rc
}

// SetDefaultCommand selects the subcommand dispatched when none is given.
func (rc *RootCommand) SetDefaultCommand(name string) {
	rc.defaultCommand = name
}

func (rc *RootCommand) register(cmd command) {
	rc.commands[cmd.name] = cmd
}

// normalizeFlagName accepts --output_dir style spellings for --output-dir.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// Execute parses global flags and dispatches to a subcommand, falling back
// to the default command when args name none.
func (rc *RootCommand) Execute(args []string) error {
	globals := rc.globalFlags()
	if err := globals.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	remaining := globals.Args()
	if len(remaining) == 0 {
		if rc.defaultCommand == "" {
			rc.printHelp(globals)
			return nil
		}
		remaining = []string{rc.defaultCommand}
	}

	sub, ok := rc.commands[remaining[0]]
	if !ok {
		fmt.Fprintf(rc.stderr, "Unknown command %q\n\n", remaining[0])
		rc.printHelp(globals)
		return fmt.Errorf("unknown command %q", remaining[0])
	}

	fs := rc.commandFlags(sub)
	if err := fs.Parse(remaining[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var app *AppContext
	if !sub.skipInit {
		var err error
		if app, err = rc.ensureAppContext(); err != nil {
			return err
		}
	}
	return sub.run(fs, fs.Args(), app, rc.stdout, rc.stderr)
}

func (rc *RootCommand) globalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(rc.name, pflag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	fs.SetInterspersed(false)
	fs.SetNormalizeFunc(normalizeFlagName)
	fs.StringVar(&rc.configPath, "config", "", "Path to config file (default: ./config.yaml, then ./worker_gui_remote_config.json, if present)")
	fs.StringVar(&rc.configPath, "config-file", "", "Alias for --config")
	fs.StringVar(&rc.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	fs.StringVar(&rc.logFormat, "log-format", "", "Override log output format (json, console)")
	_ = fs.MarkHidden("config-file")
	fs.Usage = func() { rc.printHelp(fs) }
	return fs
}

func (rc *RootCommand) commandFlags(sub command) *pflag.FlagSet {
	fs := pflag.NewFlagSet(sub.name, pflag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	fs.SetNormalizeFunc(normalizeFlagName)
	if sub.configure != nil {
		sub.configure(fs)
	}
	fs.Usage = func() {
		fmt.Fprintf(rc.stdout, "Usage: %s %s [flags]\n%s\n", rc.name, sub.name, sub.description)
		fmt.Fprint(rc.stdout, fs.FlagUsages())
	}
	return fs
}

// ensureAppContext loads configuration once, applies the global overrides
// and builds the logger.
func (rc *RootCommand) ensureAppContext() (*AppContext, error) {
	if rc.appCtx != nil {
		return rc.appCtx, nil
	}

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}
	if err := rc.applyOverrides(&cfg); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    rc.stderr,
		Component: rc.name,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded", "source", cfg.Source, "output_dir", cfg.Paths.OutputDir, "remote_url", cfg.RemoteURL)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger}
	return rc.appCtx, nil
}

func (rc *RootCommand) applyOverrides(cfg *config.Config) error {
	if rc.logLevel != "" {
		level, err := config.NormalizeLogLevel(rc.logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		cfg.Logging.Level = level
	}
	if rc.logFormat != "" {
		format, err := config.NormalizeFormat(rc.logFormat)
		if err != nil {
			return fmt.Errorf("--log-format: %w", err)
		}
		cfg.Logging.Format = format
	}
	return nil
}

func (rc *RootCommand) printHelp(globals *pflag.FlagSet) {
	fmt.Fprintf(rc.stdout, "%s - activity capture worker and collector\nVersion: %s\n\n", rc.name, versionString())
	fmt.Fprintf(rc.stdout, "Usage: %s [global flags] <command> [command flags]\n", rc.name)
	if rc.defaultCommand != "" {
		fmt.Fprintf(rc.stdout, "Without a command, %q runs.\n", rc.defaultCommand)
	}
	fmt.Fprintf(rc.stdout, "\nGlobal flags:\n%s\nCommands:\n", globals.FlagUsages())

	names := make([]string, 0, len(rc.commands))
	for name := range rc.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(rc.stdout, "  %-10s %s\n", name, rc.commands[name].description)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (go%s/%s)", buildinfo.Version(), runtimeVersion(), runtimeGOOS())
}

// runtimeVersion is extracted for testability.
var runtimeVersion = func() string { return strings.TrimPrefix(runtime.Version(), "go") }

// runtimeGOOS is extracted for testability.
var runtimeGOOS = func() string { return runtime.GOOS }
