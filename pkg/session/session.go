// Package session describes the on-disk capture session: the directory
// layout shared by the producers and the uploader, and the session.json
// manifest that records how the worker was configured and how its units fared.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/y1024/agi-computer-control/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

// Fixed artifact names inside the session directory.
const (
	KeyboardLogName  = "keyboard.log"
	PointerLogName   = "mouse.log"
	ManifestName     = "session.json"
	ScreenshotPrefix = "screenshot_"
	ScreenshotExt    = ".png"
	PendingExt       = ".pending"
)

// Layout represents the absolute filesystem locations for a session.
type Layout struct {
	Root         string
	KeyboardLog  string
	PointerLog   string
	ManifestPath string
}

// BuildLayout creates the filesystem layout rooted at the session directory.
func BuildLayout(root string) Layout {
	return Layout{
		Root:         root,
		KeyboardLog:  filepath.Join(root, KeyboardLogName),
		PointerLog:   filepath.Join(root, PointerLogName),
		ManifestPath: filepath.Join(root, ManifestName),
	}
}

// EnsureFilesystem creates the session directory and both event logs if absent.
// Existing artifacts are left untouched so a restarted worker uploads them.
func EnsureFilesystem(layout Layout) error {
	if strings.TrimSpace(layout.Root) == "" {
		return errors.New("session directory must not be empty")
	}
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	for _, path := range []string{layout.KeyboardLog, layout.PointerLog} {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("initialise %s: %w", filepath.Base(path), err)
		}
		file.Close()
	}
	return nil
}

// ScreenshotName derives the artifact name for a capture taken at t.
func ScreenshotName(t time.Time) string {
	seconds := float64(t.UnixMicro()) / 1e6
	return ScreenshotPrefix + strconv.FormatFloat(seconds, 'f', 6, 64) + ScreenshotExt
}

// IsScreenshotName reports whether name is a completed screenshot artifact.
func IsScreenshotName(name string) bool {
	return strings.HasPrefix(name, ScreenshotPrefix) && strings.HasSuffix(name, ScreenshotExt)
}

// PendingName names a rotated snapshot of logName taken at t.
func PendingName(logName string, t time.Time) string {
	return fmt.Sprintf("%s.%019d%s", logName, t.UnixNano(), PendingExt)
}

// IsPendingName reports whether name is a rotated snapshot of logName.
func IsPendingName(logName, name string) bool {
	return strings.HasPrefix(name, logName+".") && strings.HasSuffix(name, PendingExt)
}

// Unit states recorded in the manifest.
const (
	UnitStatePending    = "pending"
	UnitStateRunning    = "running"
	UnitStateRestarting = "restarting"
	UnitStateExited     = "exited"
	UnitStateFailed     = "failed"
	UnitStateDisabled   = "disabled"
)

// UnitStatus captures the latest known state of a supervised unit.
type UnitStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Restarts  int       `json:"restarts,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings records the knobs that shape what the session captures and uploads.
type Settings struct {
	KeyboardEnabled    bool    `json:"keyboard_enabled"`
	PointerEnabled     bool    `json:"pointer_enabled"`
	ScreenshotsEnabled bool    `json:"screenshots_enabled"`
	ScreenshotInterval float64 `json:"screenshot_interval_seconds"`
	PollInterval       float64 `json:"poll_interval_seconds"`
	DrainMode          string  `json:"drain_mode"`
	Retention          string  `json:"retention"`
	RestartPolicy      string  `json:"restart_policy"`
}

// Status summarises the lifecycle of the session.
type Status struct {
	State     string       `json:"state"`
	Summary   string       `json:"summary,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Units     []UnitStatus `json:"units,omitempty"`
}

// Manifest is the durable metadata describing a capture session.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	Hostname      string    `json:"hostname"`
	AppVersion    string    `json:"app_version"`
	ConfigSource  string    `json:"config_source"`
	RemoteURL     string    `json:"remote_url"`
	ClientKey     string    `json:"client_key"`
	Settings      Settings  `json:"settings"`
	Status        Status    `json:"status"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	CreatedAt  time.Time
	Hostname   string
	AppVersion string
	Config     config.Config
}

// New constructs a manifest using the supplied options.
func New(opts Options) Manifest {
	cfg := opts.Config
	return Manifest{
		SchemaVersion: SchemaVersion,
		SessionID:     uuid.NewString(),
		CreatedAt:     opts.CreatedAt.UTC(),
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  cfg.Source,
		RemoteURL:     cfg.RemoteURL,
		ClientKey:     cfg.ClientKey,
		Settings: Settings{
			KeyboardEnabled:    cfg.Capture.KeyboardEnabled,
			PointerEnabled:     cfg.Capture.PointerEnabled,
			ScreenshotsEnabled: cfg.Capture.ScreenshotsEnabled,
			ScreenshotInterval: cfg.Capture.Screenshots.IntervalSeconds,
			PollInterval:       cfg.Upload.PollIntervalSeconds,
			DrainMode:          cfg.Upload.DrainMode,
			Retention:          cfg.Upload.Retention,
			RestartPolicy:      cfg.Supervisor.RestartPolicy,
		},
		Status: Status{State: "pending"},
	}
}

// SetUnit inserts or replaces the status entry for a unit.
func (m *Manifest) SetUnit(status UnitStatus) {
	for i := range m.Status.Units {
		if m.Status.Units[i].Name == status.Name {
			if status.Restarts == 0 {
				status.Restarts = m.Status.Units[i].Restarts
			}
			m.Status.Units[i] = status
			return
		}
	}
	m.Status.Units = append(m.Status.Units, status)
}

// Unit returns the recorded status for name.
func (m Manifest) Unit(name string) (UnitStatus, bool) {
	for _, unit := range m.Status.Units {
		if unit.Name == name {
			return unit, true
		}
	}
	return UnitStatus{}, false
}

// Save writes the manifest JSON to disk through a temporary file so readers
// never see a partial document.
func Save(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	return man, nil
}

// Journal serialises concurrent manifest updates and persists each one.
type Journal struct {
	mu       sync.Mutex
	path     string
	manifest Manifest
}

// NewJournal persists man at path and returns a journal tracking it.
func NewJournal(man Manifest, path string) (*Journal, error) {
	if err := Save(man, path); err != nil {
		return nil, err
	}
	return &Journal{path: path, manifest: man}, nil
}

// Update applies fn to the manifest and saves the result.
func (j *Journal) Update(fn func(*Manifest)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.manifest)
	return Save(j.manifest, j.path)
}

// Snapshot returns a copy of the current manifest.
func (j *Journal) Snapshot() Manifest {
	j.mu.Lock()
	defer j.mu.Unlock()
	man := j.manifest
	man.Status.Units = append([]UnitStatus(nil), j.manifest.Status.Units...)
	return man
}
