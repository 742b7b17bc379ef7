package events

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/y1024/agi-computer-control/pkg/store"
)

func TestNewRecorderValidation(t *testing.T) {
	if _, err := NewRecorder(RecorderOptions{Log: &memoryLog{}}); err == nil {
		t.Fatalf("expected error for missing listener")
	}
	listener := ListenerFunc(func(ctx context.Context, emit func(Record) error) error { return nil })
	if _, err := NewRecorder(RecorderOptions{Listener: listener}); err == nil {
		t.Fatalf("expected error for missing log")
	}
}

type memoryLog struct {
	lines []string
	err   error
}

func (m *memoryLog) Append(line []byte) error {
	if m.err != nil {
		return m.err
	}
	m.lines = append(m.lines, string(line))
	return nil
}

func TestRecorderAppendsEveryRecordInOrder(t *testing.T) {
	base := time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "mouse.log")
	log, err := store.OpenLog(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer log.Close()

	listener := ListenerFunc(func(ctx context.Context, emit func(Record) error) error {
		timeline := []Record{
			PointerMove{X: 1, Y: 1, At: base},
			PointerClick{X: 1, Y: 1, Button: "Button.left", Pressed: true, At: base.Add(time.Millisecond)},
			PointerClick{X: 1, Y: 1, Button: "Button.left", Pressed: false, At: base.Add(2 * time.Millisecond)},
			PointerScroll{X: 1, Y: 1, DY: 1, At: base.Add(3 * time.Millisecond)},
		}
		for _, rec := range timeline {
			if err := emit(rec); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	})

	recorder, err := NewRecorder(RecorderOptions{Name: "pointer", Listener: listener, Log: log})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := recorder.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	records, err := DecodeLines(string(data))
	if err != nil {
		t.Fatalf("decode log: %v", err)
	}
	want := []Kind{KindPointerMove, KindPointerClick, KindPointerClick, KindPointerWheel}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.Kind() != want[i] {
			t.Fatalf("record %d: expected %s, got %s", i, want[i], rec.Kind())
		}
	}
}

func TestRecorderSurfacesListenerFailure(t *testing.T) {
	listener := ListenerFunc(func(ctx context.Context, emit func(Record) error) error {
		return ErrHookUnavailable
	})
	recorder, err := NewRecorder(RecorderOptions{Name: "keyboard", Listener: listener, Log: &memoryLog{}})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	err = recorder.Run(context.Background())
	if !errors.Is(err, ErrHookUnavailable) {
		t.Fatalf("expected ErrHookUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "keyboard") {
		t.Fatalf("expected unit name in error, got %v", err)
	}
}

func TestRecorderStopsOnAppendFailure(t *testing.T) {
	sink := &memoryLog{err: store.ErrLogClosed}
	listener := ListenerFunc(func(ctx context.Context, emit func(Record) error) error {
		return emit(KeyPress{Key: "a", At: time.Now()})
	})
	recorder, err := NewRecorder(RecorderOptions{Listener: listener, Log: sink})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := recorder.Run(context.Background()); !errors.Is(err, store.ErrLogClosed) {
		t.Fatalf("expected ErrLogClosed, got %v", err)
	}
}
