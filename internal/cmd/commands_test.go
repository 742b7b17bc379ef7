package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/permissions"
	"github.com/y1024/agi-computer-control/pkg/session"
)

func flagsFor(t *testing.T, cmd command, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetNormalizeFunc(normalizeFlagName)
	if cmd.configure != nil {
		cmd.configure(fs)
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func withLookup(t *testing.T, values map[string]string) {
	t.Helper()
	orig := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = orig })
}

func TestDoctorReportsProblems(t *testing.T) {
	withLookup(t, map[string]string{
		permissions.EnvAccessibility:   "denied",
		permissions.EnvScreenRecording: "denied",
	})
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout bytes.Buffer
	err := runDoctor(flagsFor(t, newDoctorCommand()), nil, ctx, &stdout, io.Discard)
	if err == nil {
		t.Fatalf("expected doctor to report problems")
	}
	out := stdout.String()
	if !strings.Contains(out, "Config: invalid") {
		t.Fatalf("expected config problem in %q", out)
	}
	if !strings.Contains(out, "permission=denied") {
		t.Fatalf("expected denied permission in %q", out)
	}
}

func TestDoctorPassesWhenCaptureDisabled(t *testing.T) {
	withLookup(t, map[string]string{
		permissions.EnvAccessibility:   "denied",
		permissions.EnvScreenRecording: "denied",
	})
	cfg := config.Default()
	cfg.RemoteURL = "http://collector:9200"
	cfg.Capture.PointerEnabled = false
	cfg.Capture.ScreenshotsEnabled = false
	cfg.Capture.KeyboardEnabled = true
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	// keyboard still enabled, so the denied hook counts
	if err := runDoctor(flagsFor(t, newDoctorCommand()), nil, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected hook problem while keyboard capture is enabled")
	}

	withLookup(t, map[string]string{
		permissions.EnvAccessibility:   "granted",
		permissions.EnvScreenRecording: "denied",
	})
	var stdout bytes.Buffer
	if err := runDoctor(flagsFor(t, newDoctorCommand()), nil, ctx, &stdout, io.Discard); err != nil && !strings.Contains(stdout.String(), "provider=unavailable") {
		t.Fatalf("unexpected doctor failure: %v\n%s", err, stdout.String())
	}
}

func TestPurgeEmptiesSessionDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	layout := session.BuildLayout(dir)
	if err := session.EnsureFilesystem(layout); err != nil {
		t.Fatalf("ensure filesystem: %v", err)
	}
	if err := os.WriteFile(layout.KeyboardLog, []byte("{\"event\":\"key_press\"}\n"), 0o644); err != nil {
		t.Fatalf("seed keyboard log: %v", err)
	}
	shot := filepath.Join(dir, "screenshot_1.000000.png")
	if err := os.WriteFile(shot, []byte("png"), 0o644); err != nil {
		t.Fatalf("seed screenshot: %v", err)
	}

	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}
	var stdout bytes.Buffer
	if err := runPurge(flagsFor(t, newPurgeCommand(), "--output-dir", dir), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("purge returned error: %v", err)
	}
	if info, err := os.Stat(layout.KeyboardLog); err != nil || info.Size() != 0 {
		t.Fatalf("expected empty keyboard log, got %v %v", info, err)
	}
	if _, err := os.Stat(shot); !os.IsNotExist(err) {
		t.Fatalf("expected screenshot removed, got %v", err)
	}
}

func TestServeStopsOnCancellation(t *testing.T) {
	orig := notifyContext
	defer func() { notifyContext = orig }()
	notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		cancel()
		return ctx, cancel
	}

	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}
	var stdout bytes.Buffer
	if err := runServe(flagsFor(t, newServeCommand(), "--listen", "127.0.0.1:0"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "127.0.0.1:0") {
		t.Fatalf("expected listen banner, got %q", stdout.String())
	}
}
