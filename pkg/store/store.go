// Package store owns the local session artifacts: the two event logs the
// recorders append to and the screenshots the capturer drops beside them.
// The uploader drains a Batch from the store and later purges or discards it.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/y1024/agi-computer-control/pkg/config"
	"github.com/y1024/agi-computer-control/pkg/session"
)

// Options configures a store.
type Options struct {
	Layout    session.Layout
	DrainMode string
	Clock     func() time.Time
}

// Store coordinates access to the session directory.
type Store struct {
	layout   session.Layout
	mode     string
	clock    func() time.Time
	keyboard *Log
	pointer  *Log
}

// Artifact is a completed screenshot on disk.
type Artifact struct {
	Name string
	Path string
}

// Batch is the snapshot of local data taken at the start of an upload cycle.
type Batch struct {
	Keyboard    string
	Pointer     string
	Screenshots []Artifact

	pending []string
}

// Empty reports whether the batch carries no events and no screenshots.
func (b Batch) Empty() bool {
	return b.Keyboard == "" && b.Pointer == "" && len(b.Screenshots) == 0
}

// Open prepares the session directory and opens both event logs.
func Open(opts Options) (*Store, error) {
	mode := opts.DrainMode
	if mode == "" {
		mode = config.DrainRotate
	}
	if mode != config.DrainRotate && mode != config.DrainDirect {
		return nil, fmt.Errorf("unsupported drain mode %q", mode)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if err := session.EnsureFilesystem(opts.Layout); err != nil {
		return nil, err
	}
	keyboard, err := OpenLog(opts.Layout.KeyboardLog)
	if err != nil {
		return nil, err
	}
	pointer, err := OpenLog(opts.Layout.PointerLog)
	if err != nil {
		keyboard.Close()
		return nil, err
	}
	return &Store{
		layout:   opts.Layout,
		mode:     mode,
		clock:    clock,
		keyboard: keyboard,
		pointer:  pointer,
	}, nil
}

// Layout returns the session paths backing the store.
func (s *Store) Layout() session.Layout {
	return s.layout
}

// DrainMode returns the configured drain mode.
func (s *Store) DrainMode() string {
	return s.mode
}

// KeyboardLog returns the keyboard event log.
func (s *Store) KeyboardLog() *Log {
	return s.keyboard
}

// PointerLog returns the pointer event log.
func (s *Store) PointerLog() *Log {
	return s.pointer
}

// Drain snapshots the current logs and the completed screenshots. Missing
// logs read as empty strings.
func (s *Store) Drain() (Batch, error) {
	var batch Batch
	var err error
	switch s.mode {
	case config.DrainDirect:
		if batch.Keyboard, err = s.keyboard.Snapshot(); err != nil {
			return Batch{}, err
		}
		if batch.Pointer, err = s.pointer.Snapshot(); err != nil {
			return Batch{}, err
		}
	default:
		keyboard, keyboardFiles, err := s.rotateAndRead(s.keyboard, session.KeyboardLogName)
		if err != nil {
			return Batch{}, err
		}
		pointer, pointerFiles, err := s.rotateAndRead(s.pointer, session.PointerLogName)
		if err != nil {
			return Batch{}, err
		}
		batch.Keyboard = keyboard
		batch.Pointer = pointer
		batch.pending = append(keyboardFiles, pointerFiles...)
	}

	batch.Screenshots, err = s.Screenshots()
	if err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// rotateAndRead moves the live log aside and returns the concatenated
// contents of every snapshot of it, oldest first, including snapshots kept
// from earlier cycles.
func (s *Store) rotateAndRead(log *Log, logName string) (string, []string, error) {
	at := s.clock()
	dst := filepath.Join(s.layout.Root, session.PendingName(logName, at))
	for exists(dst) {
		at = at.Add(time.Nanosecond)
		dst = filepath.Join(s.layout.Root, session.PendingName(logName, at))
	}
	if err := log.Rotate(dst); err != nil {
		return "", nil, err
	}
	files, err := s.pendingFiles(logName)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	for _, path := range files {
		data, err := readOptional(path)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(data)
	}
	return b.String(), files, nil
}

func (s *Store) pendingFiles(logName string) ([]string, error) {
	entries, err := os.ReadDir(s.layout.Root)
	if err != nil {
		return nil, fmt.Errorf("list session directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !session.IsPendingName(logName, entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(s.layout.Root, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Screenshots lists the completed screenshot artifacts in name order.
func (s *Store) Screenshots() ([]Artifact, error) {
	entries, err := os.ReadDir(s.layout.Root)
	if err != nil {
		return nil, fmt.Errorf("list session directory: %w", err)
	}
	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || !session.IsScreenshotName(entry.Name()) {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name: entry.Name(),
			Path: filepath.Join(s.layout.Root, entry.Name()),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Name < artifacts[j].Name
	})
	return artifacts, nil
}

// Discard removes exactly what batch consumed. In direct mode the live logs
// are truncated since the batch read them in place.
func (s *Store) Discard(batch Batch) error {
	var errs []error
	if s.mode == config.DrainDirect {
		errs = append(errs, s.keyboard.Truncate(), s.pointer.Truncate())
	}
	for _, path := range batch.pending {
		errs = append(errs, removeOptional(path))
	}
	for _, artifact := range batch.Screenshots {
		errs = append(errs, removeOptional(artifact.Path))
	}
	return errors.Join(errs...)
}

// PurgeAll truncates both logs and deletes every screenshot and snapshot
// currently present.
func (s *Store) PurgeAll() error {
	errs := []error{s.keyboard.Truncate(), s.pointer.Truncate()}
	entries, err := os.ReadDir(s.layout.Root)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("list session directory: %w", err))...)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if session.IsScreenshotName(name) ||
			session.IsPendingName(session.KeyboardLogName, name) ||
			session.IsPendingName(session.PointerLogName, name) {
			errs = append(errs, removeOptional(filepath.Join(s.layout.Root, name)))
		}
	}
	return errors.Join(errs...)
}

// Close releases both log descriptors.
func (s *Store) Close() error {
	return errors.Join(s.keyboard.Close(), s.pointer.Close())
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func removeOptional(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
