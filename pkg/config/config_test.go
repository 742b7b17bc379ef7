package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(cwd)

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir temp dir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.OutputDir != DefaultOutputDir {
		t.Fatalf("expected default output dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Source != "<defaults>" {
		t.Fatalf("expected default source marker, got %q", cfg.Source)
	}
	if cfg.Upload.PollIntervalSeconds != 1 {
		t.Fatalf("unexpected default poll interval: %v", cfg.Upload.PollIntervalSeconds)
	}
	if cfg.Upload.TimeoutSeconds != 5 {
		t.Fatalf("unexpected default timeout: %v", cfg.Upload.TimeoutSeconds)
	}
	if cfg.Upload.Retention != RetainAlways {
		t.Fatalf("unexpected default retention: %q", cfg.Upload.Retention)
	}
	if cfg.Supervisor.RestartPolicy != RestartContinue {
		t.Fatalf("unexpected default restart policy: %q", cfg.Supervisor.RestartPolicy)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `remote_url: http://collector.internal:9200/
client_key: lab-7
paths:
  output_dir: capture
capture:
  pointer_enabled: false
  screenshots:
    interval_seconds: 2.5
    display: 1
upload:
  poll_interval_seconds: 3
  timeout_seconds: 10
  drain_mode: DIRECT
  retention: on_delivery
  max_pending_cycles: 4
  requests_per_second: 20
supervisor:
  restart_policy: restart
  restart_backoff_seconds: 2
  restart_backoff_max_seconds: 30
  max_restarts: 5
collector:
  listen_address: 127.0.0.1:9300
logging:
  level: DEBUG
  format: console
`

	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RemoteURL != "http://collector.internal:9200" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RemoteURL)
	}
	if cfg.ClientKey != "lab-7" {
		t.Fatalf("unexpected client key: %q", cfg.ClientKey)
	}
	if cfg.Paths.OutputDir != "capture" {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Capture.PointerEnabled {
		t.Fatalf("expected pointer capture disabled")
	}
	if !cfg.Capture.KeyboardEnabled {
		t.Fatalf("expected keyboard capture to keep its default")
	}
	if cfg.Capture.Screenshots.IntervalSeconds != 2.5 {
		t.Fatalf("unexpected screenshot interval: %v", cfg.Capture.Screenshots.IntervalSeconds)
	}
	if cfg.Capture.Screenshots.Display != 1 {
		t.Fatalf("unexpected display: %d", cfg.Capture.Screenshots.Display)
	}
	if cfg.Upload.DrainMode != DrainDirect {
		t.Fatalf("expected drain mode lowercased, got %q", cfg.Upload.DrainMode)
	}
	if cfg.Upload.Retention != RetainOnDelivery {
		t.Fatalf("unexpected retention: %q", cfg.Upload.Retention)
	}
	if cfg.Upload.MaxPendingCycles != 4 {
		t.Fatalf("unexpected max pending cycles: %d", cfg.Upload.MaxPendingCycles)
	}
	if cfg.Upload.RequestsPerSecond != 20 {
		t.Fatalf("unexpected requests per second: %v", cfg.Upload.RequestsPerSecond)
	}
	if cfg.Supervisor.RestartPolicy != RestartBackoff {
		t.Fatalf("unexpected restart policy: %q", cfg.Supervisor.RestartPolicy)
	}
	if cfg.Supervisor.MaxRestarts != 5 {
		t.Fatalf("unexpected max restarts: %d", cfg.Supervisor.MaxRestarts)
	}
	if cfg.Collector.ListenAddress != "127.0.0.1:9300" {
		t.Fatalf("unexpected listen address: %q", cfg.Collector.ListenAddress)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Source != cfgPath {
		t.Fatalf("expected source to equal path, got %q", cfg.Source)
	}
	if err := cfg.ValidateWorker(); err != nil {
		t.Fatalf("expected worker config to validate: %v", err)
	}
}

func TestLoadAcceptsJSONConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "worker_gui_remote_config.json")
	content := `{"remote_url": "http://10.0.0.5:9200", "client_key": "desk-42"}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RemoteURL != "http://10.0.0.5:9200" || cfg.ClientKey != "desk-42" {
		t.Fatalf("unexpected identity: %q %q", cfg.RemoteURL, cfg.ClientKey)
	}
	if cfg.Upload.DrainMode != DrainRotate {
		t.Fatalf("expected defaults to survive, got drain mode %q", cfg.Upload.DrainMode)
	}
}

func TestUnknownKeyReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "capture:\n  unsupported: true\n"

	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unsupported key")
	}
}

func TestInvalidEnumReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "upload:\n  retention: sometimes\n"

	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unsupported retention")
	}
}

func TestValidateWorkerRequiresRemote(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateWorker(); err == nil {
		t.Fatalf("expected error for missing remote_url")
	}

	cfg.RemoteURL = "ftp://collector"
	if err := cfg.ValidateWorker(); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}

	cfg.RemoteURL = "http://collector:9200"
	if err := cfg.ValidateWorker(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Capture.KeyboardEnabled = false
	cfg.Capture.PointerEnabled = false
	cfg.Capture.ScreenshotsEnabled = false
	if err := cfg.ValidateWorker(); err == nil {
		t.Fatalf("expected error when every capture unit is disabled")
	}
}

func TestDurationConvertsFractionalSeconds(t *testing.T) {
	if got := Duration(1.5); got != 1500*time.Millisecond {
		t.Fatalf("unexpected duration: %v", got)
	}
}

func TestLoadFallsBackToLegacyJSONFile(t *testing.T) {
	t.Chdir(t.TempDir())
	legacy := `{"remote_url": "http://10.0.0.5:9200", "client_key": "lab-3"}`
	if err := os.WriteFile(LegacyFileName, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source != LegacyFileName || cfg.ClientKey != "lab-3" {
		t.Fatalf("expected legacy file to load, got source %q key %q", cfg.Source, cfg.ClientKey)
	}

	if err := os.WriteFile(DefaultFileName, []byte("client_key: yaml-wins\n"), 0o644); err != nil {
		t.Fatalf("write yaml config: %v", err)
	}
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source != DefaultFileName || cfg.ClientKey != "yaml-wins" {
		t.Fatalf("expected %s to take precedence, got source %q key %q", DefaultFileName, cfg.Source, cfg.ClientKey)
	}
}
