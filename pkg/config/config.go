package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config files tried in order when no path is given. The JSON name is the
// one earlier worker deployments ship with.
const (
	DefaultFileName = "config.yaml"
	LegacyFileName  = "worker_gui_remote_config.json"
)

// DefaultOutputDir is the session directory used when none is configured.
const DefaultOutputDir = "worker_gui_remote_output"

// Drain modes select how the uploader takes a batch from the session directory.
const (
	DrainDirect = "direct"
	DrainRotate = "rotate"
)

// Retention policies decide when a drained batch is removed from disk.
const (
	RetainAlways     = "always"
	RetainOnDelivery = "on_delivery"
)

// Restart policies applied by the supervisor when a unit exits with an error.
const (
	RestartContinue = "continue"
	RestartBackoff  = "restart"
	RestartStopAll  = "stop_all"
)

// Config captures the user-adjustable knobs for the worker and the collector.
type Config struct {
	RemoteURL  string           `yaml:"remote_url"`
	ClientKey  string           `yaml:"client_key"`
	Paths      PathsConfig      `yaml:"paths"`
	Capture    CaptureConfig    `yaml:"capture"`
	Upload     UploadConfig     `yaml:"upload"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Collector  CollectorConfig  `yaml:"collector"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

// PathsConfig controls filesystem locations used by the worker.
type PathsConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// CaptureConfig toggles capture units.
type CaptureConfig struct {
	KeyboardEnabled    bool `yaml:"keyboard_enabled"`
	PointerEnabled     bool `yaml:"pointer_enabled"`
	ScreenshotsEnabled bool `yaml:"screenshots_enabled"`

	Screenshots ScreenshotConfig `yaml:"screenshots"`
}

// ScreenshotConfig controls screenshot cadence and the captured display.
type ScreenshotConfig struct {
	IntervalSeconds float64 `yaml:"interval_seconds"`
	Display         int     `yaml:"display"`
}

// UploadConfig controls the uploader loop.
type UploadConfig struct {
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
	TimeoutSeconds      float64 `yaml:"timeout_seconds"`
	DrainMode           string  `yaml:"drain_mode"`
	Retention           string  `yaml:"retention"`
	MaxPendingCycles    int     `yaml:"max_pending_cycles"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
}

// SupervisorConfig controls how failed units are handled.
type SupervisorConfig struct {
	RestartPolicy            string  `yaml:"restart_policy"`
	RestartBackoffSeconds    float64 `yaml:"restart_backoff_seconds"`
	RestartBackoffMaxSeconds float64 `yaml:"restart_backoff_max_seconds"`
	MaxRestarts              int     `yaml:"max_restarts"`
}

// CollectorConfig configures the collector sink started by the serve command.
type CollectorConfig struct {
	ListenAddress string `yaml:"listen_address"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			OutputDir: DefaultOutputDir,
		},
		Capture: CaptureConfig{
			KeyboardEnabled:    true,
			PointerEnabled:     true,
			ScreenshotsEnabled: true,
			Screenshots: ScreenshotConfig{
				IntervalSeconds: 1,
				Display:         0,
			},
		},
		Upload: UploadConfig{
			PollIntervalSeconds: 1,
			TimeoutSeconds:      5,
			DrainMode:           DrainRotate,
			Retention:           RetainAlways,
			MaxPendingCycles:    10,
			RequestsPerSecond:   0,
		},
		Supervisor: SupervisorConfig{
			RestartPolicy:            RestartContinue,
			RestartBackoffSeconds:    1,
			RestartBackoffMaxSeconds: 60,
			MaxRestarts:              0,
		},
		Collector: CollectorConfig{
			ListenAddress: "0.0.0.0:9200",
			MaxBodyBytes:  64 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./config.yaml but tolerates a missing file.
// JSON files are accepted as well since YAML is a superset of JSON.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = findDefaultFile()
		if candidate == "" {
			return cfg, nil
		}
	}

	file, err := os.Open(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}
	defer file.Close()

	if err := decode(file, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config file %q: %w", candidate, err)
	}
	cfg.Source = candidate
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// findDefaultFile returns the first default config file present in the
// working directory, or "" when there is none.
func findDefaultFile() string {
	for _, name := range []string{DefaultFileName, LegacyFileName} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must not be empty")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if c.Capture.Screenshots.IntervalSeconds <= 0 {
		return errors.New("capture.screenshots.interval_seconds must be positive")
	}
	if c.Capture.Screenshots.Display < 0 {
		return errors.New("capture.screenshots.display must not be negative")
	}

	if c.Upload.PollIntervalSeconds <= 0 {
		return errors.New("upload.poll_interval_seconds must be positive")
	}
	if c.Upload.TimeoutSeconds <= 0 {
		return errors.New("upload.timeout_seconds must be positive")
	}
	switch c.Upload.DrainMode {
	case DrainDirect, DrainRotate:
	default:
		return fmt.Errorf("upload.drain_mode: unsupported value %q", c.Upload.DrainMode)
	}
	switch c.Upload.Retention {
	case RetainAlways, RetainOnDelivery:
	default:
		return fmt.Errorf("upload.retention: unsupported value %q", c.Upload.Retention)
	}
	if c.Upload.MaxPendingCycles <= 0 {
		return errors.New("upload.max_pending_cycles must be positive")
	}
	if c.Upload.RequestsPerSecond < 0 {
		return errors.New("upload.requests_per_second must not be negative")
	}

	switch c.Supervisor.RestartPolicy {
	case RestartContinue, RestartBackoff, RestartStopAll:
	default:
		return fmt.Errorf("supervisor.restart_policy: unsupported value %q", c.Supervisor.RestartPolicy)
	}
	if c.Supervisor.RestartBackoffSeconds <= 0 {
		return errors.New("supervisor.restart_backoff_seconds must be positive")
	}
	if c.Supervisor.RestartBackoffMaxSeconds < c.Supervisor.RestartBackoffSeconds {
		return errors.New("supervisor.restart_backoff_max_seconds must not be below restart_backoff_seconds")
	}
	if c.Supervisor.MaxRestarts < 0 {
		return errors.New("supervisor.max_restarts must not be negative")
	}

	if strings.TrimSpace(c.Collector.ListenAddress) == "" {
		return errors.New("collector.listen_address must not be empty")
	}
	if c.Collector.MaxBodyBytes <= 0 {
		return errors.New("collector.max_body_bytes must be positive")
	}

	return nil
}

// ValidateWorker checks the settings the worker needs on top of Validate.
func (c Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	remote := strings.TrimSpace(c.RemoteURL)
	if remote == "" {
		return errors.New("remote_url must not be empty")
	}
	parsed, err := url.Parse(remote)
	if err != nil {
		return fmt.Errorf("remote_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote_url: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("remote_url: missing host")
	}
	if !c.Capture.KeyboardEnabled && !c.Capture.PointerEnabled && !c.Capture.ScreenshotsEnabled {
		return errors.New("capture: at least one of keyboard, pointer or screenshots must be enabled")
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()

	c.RemoteURL = strings.TrimRight(strings.TrimSpace(c.RemoteURL), "/")
	c.ClientKey = strings.TrimSpace(c.ClientKey)

	c.Paths.OutputDir = filepath.Clean(strings.TrimSpace(c.Paths.OutputDir))
	if c.Paths.OutputDir == "." || c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaults.Paths.OutputDir
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if c.Capture.Screenshots.IntervalSeconds <= 0 {
		c.Capture.Screenshots.IntervalSeconds = defaults.Capture.Screenshots.IntervalSeconds
	}

	if c.Upload.PollIntervalSeconds <= 0 {
		c.Upload.PollIntervalSeconds = defaults.Upload.PollIntervalSeconds
	}
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = defaults.Upload.TimeoutSeconds
	}
	c.Upload.DrainMode = strings.ToLower(strings.TrimSpace(c.Upload.DrainMode))
	if c.Upload.DrainMode == "" {
		c.Upload.DrainMode = defaults.Upload.DrainMode
	}
	c.Upload.Retention = strings.ToLower(strings.TrimSpace(c.Upload.Retention))
	if c.Upload.Retention == "" {
		c.Upload.Retention = defaults.Upload.Retention
	}
	if c.Upload.MaxPendingCycles <= 0 {
		c.Upload.MaxPendingCycles = defaults.Upload.MaxPendingCycles
	}

	c.Supervisor.RestartPolicy = strings.ToLower(strings.TrimSpace(c.Supervisor.RestartPolicy))
	if c.Supervisor.RestartPolicy == "" {
		c.Supervisor.RestartPolicy = defaults.Supervisor.RestartPolicy
	}
	if c.Supervisor.RestartBackoffSeconds <= 0 {
		c.Supervisor.RestartBackoffSeconds = defaults.Supervisor.RestartBackoffSeconds
	}
	if c.Supervisor.RestartBackoffMaxSeconds <= 0 {
		c.Supervisor.RestartBackoffMaxSeconds = defaults.Supervisor.RestartBackoffMaxSeconds
	}

	if strings.TrimSpace(c.Collector.ListenAddress) == "" {
		c.Collector.ListenAddress = defaults.Collector.ListenAddress
	}
	if c.Collector.MaxBodyBytes <= 0 {
		c.Collector.MaxBodyBytes = defaults.Collector.MaxBodyBytes
	}
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}

// Duration converts a fractional seconds setting into a time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
