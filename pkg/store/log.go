package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrLogClosed is returned when a log is used after Close.
var ErrLogClosed = errors.New("log closed")

// Log is an append-only line log owned by a single producer. Every mutation
// happens under the log's mutex so an append can never interleave with a
// rotation or truncation.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenLog opens (or creates) the log at path for appending.
func OpenLog(path string) (*Log, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Log{path: path, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return file, nil
}

// Path returns the live log location.
func (l *Log) Path() string {
	return l.path
}

// Append writes line followed by a newline in a single write call.
func (l *Log) Append(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrLogClosed
	}
	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("append %s: %w", l.path, err)
	}
	return nil
}

// Rotate renames the live log to dst and reopens an empty log in its place.
// When the log has been closed the file is renamed without reopening.
func (l *Log) Rotate(dst string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return rotateFile(l.path, dst, &l.file)
}

// Snapshot returns the full contents of the live log. A missing file reads
// as empty.
func (l *Log) Snapshot() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readOptional(l.path)
}

// Truncate empties the live log.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Truncate(l.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("truncate %s: %w", l.path, err)
	}
	return nil
}

// Close releases the descriptor. Further appends fail with ErrLogClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// rotateFile moves src to dst and, if *file is open, swaps it for a fresh
// descriptor on src. A missing src yields an empty dst-less rotation.
func rotateFile(src, dst string, file **os.File) error {
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if *file != nil {
				fresh, openErr := openAppend(src)
				if openErr != nil {
					return openErr
				}
				(*file).Close()
				*file = fresh
			}
			return nil
		}
		return fmt.Errorf("rotate %s: %w", src, err)
	}
	if *file == nil {
		return nil
	}
	fresh, err := openAppend(src)
	if err != nil {
		return err
	}
	(*file).Close()
	*file = fresh
	return nil
}
