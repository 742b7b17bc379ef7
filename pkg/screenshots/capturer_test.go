package screenshots

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCapturerValidation(t *testing.T) {
	provider := CaptureProviderFunc(func(context.Context) (FrameCapture, error) { return FrameCapture{}, nil })
	if _, err := NewCapturer(Options{Interval: 0, Dir: "x", Provider: provider}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := NewCapturer(Options{Interval: time.Second, Provider: provider}); err == nil {
		t.Fatalf("expected error for empty directory")
	}
	if _, err := NewCapturer(Options{Interval: time.Second, Dir: "x"}); err == nil {
		t.Fatalf("expected error for missing provider")
	}
}

func TestCapturerWritesOneFramePerInterval(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	captured := 0
	provider := CaptureProviderFunc(func(context.Context) (FrameCapture, error) {
		captured++
		return FrameCapture{
			PNG:      []byte("png"),
			Metadata: Metadata{CapturedAt: base.Add(time.Duration(captured) * time.Second)},
		}, nil
	})

	var waits []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) > 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	dir := t.TempDir()
	capturer, err := NewCapturer(Options{Interval: 2 * time.Second, Dir: dir, Provider: provider, Sleeper: sleeper})
	if err != nil {
		t.Fatalf("new capturer: %v", err)
	}
	if err := capturer.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	if captured != 3 {
		t.Fatalf("expected 3 captures, got %d", captured)
	}
	for _, wait := range waits {
		if wait != 2*time.Second {
			t.Fatalf("expected fixed interval sleeps, got %v", waits)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 files, got %d", len(entries))
	}
	if entries[0].Name() != "screenshot_1704067201.000000.png" {
		t.Fatalf("unexpected file name %s", entries[0].Name())
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestCapturerStopsOnProviderFailure(t *testing.T) {
	provider := CaptureProviderFunc(func(context.Context) (FrameCapture, error) {
		return FrameCapture{}, newPermissionError("")
	})
	capturer, err := NewCapturer(Options{
		Interval: time.Second,
		Dir:      t.TempDir(),
		Provider: provider,
		Sleeper:  func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new capturer: %v", err)
	}
	if err := capturer.Run(context.Background()); !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestCapturerRejectsEmptyFrames(t *testing.T) {
	provider := CaptureProviderFunc(func(context.Context) (FrameCapture, error) {
		return FrameCapture{}, nil
	})
	capturer, err := NewCapturer(Options{Interval: time.Second, Dir: t.TempDir(), Provider: provider})
	if err != nil {
		t.Fatalf("new capturer: %v", err)
	}
	if _, err := capturer.CaptureOnce(context.Background()); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}

func TestDisplayProviderEncodesPNG(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := NewDisplayProvider(DisplayOptions{
		Clock:  func() time.Time { return at },
		Lookup: grantedLookup,
	})
	provider.count = func() int { return 1 }
	provider.capture = func(int) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 3)), nil
	}

	frame, err := provider.Grab(context.Background())
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	img, err := png.Decode(strings.NewReader(string(frame.PNG)))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 4 || frame.Metadata.Height != 3 {
		t.Fatalf("unexpected dimensions %v %#v", img.Bounds(), frame.Metadata)
	}
	if !frame.Metadata.CapturedAt.Equal(at) {
		t.Fatalf("expected capture time from clock")
	}
}

func TestDisplayProviderFailures(t *testing.T) {
	provider := NewDisplayProvider(DisplayOptions{Display: 2, Lookup: grantedLookup})
	provider.count = func() int { return 1 }
	if _, err := provider.Grab(context.Background()); !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("expected ErrNoDisplay, got %v", err)
	}

	denied := NewDisplayProvider(DisplayOptions{Lookup: func(key string) (string, bool) {
		return "denied", key == "CAPTURE_SCREEN_RECORDING"
	}})
	if _, err := denied.Grab(context.Background()); !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected ErrPermissionRequired, got %v", err)
	}
}

func TestWriteAtomicLeavesNoTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screenshot_1.000000.png")
	if err := writeAtomic(path, []byte("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "screenshot_1.000000.png" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func grantedLookup(key string) (string, bool) {
	if key == "CAPTURE_SCREEN_RECORDING" {
		return "granted", true
	}
	return "", false
}
