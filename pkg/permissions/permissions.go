// Package permissions probes whether the host will let the worker hook
// input devices and read the screen.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results for input and screen capture.
type Status string

const (
	StatusUnknown        Status = "unknown"
	StatusGranted        Status = "granted"
	StatusDenied         Status = "denied"
	StatusPromptRequired Status = "prompt"
	StatusUnavailable    Status = "unavailable"
)

// Environment variables that override probing, mostly for tests and CI hosts.
const (
	EnvScreenRecording = "CAPTURE_SCREEN_RECORDING"
	EnvAccessibility   = "CAPTURE_ACCESSIBILITY"
)

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// DefaultLookupEnv is the standard environment resolver.
func DefaultLookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// goos is declared for swapping in tests.
var goos = runtime.GOOS

type capability struct {
	name     string
	override string
}

var (
	screenRecording = capability{name: "screen recording", override: EnvScreenRecording}
	accessibility   = capability{name: "accessibility", override: EnvAccessibility}
)

// overrideValues maps accepted override spellings onto a status.
var overrideValues = map[string]Status{
	"granted": StatusGranted, "allow": StatusGranted, "allowed": StatusGranted, "yes": StatusGranted, "true": StatusGranted,
	"denied": StatusDenied, "no": StatusDenied, "false": StatusDenied, "blocked": StatusDenied,
	"prompt": StatusPromptRequired, "ask": StatusPromptRequired,
	"unavailable": StatusUnavailable, "unsupported": StatusUnavailable,
}

// ProbeScreenRecording reports whether the display can be captured.
func ProbeScreenRecording(lookup LookupEnvFunc) ProbeResult {
	return screenRecording.probe(lookup)
}

// ProbeAccessibility reports whether global keyboard and pointer hooks can
// be installed.
func ProbeAccessibility(lookup LookupEnvFunc) ProbeResult {
	return accessibility.probe(lookup)
}

func (c capability) probe(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = DefaultLookupEnv
	}
	if value, ok := lookup(c.override); ok {
		return interpretPermissionFlag(c.name, value)
	}
	return c.platform(lookup)
}

func (c capability) platform(lookup LookupEnvFunc) ProbeResult {
	switch goos {
	case "darwin":
		return ProbeResult{Status: StatusPromptRequired, Message: c.name + " authorisation will prompt at runtime"}
	case "windows":
		return ProbeResult{Status: StatusGranted, Message: c.name + " available to the interactive session"}
	case "linux", "freebsd", "openbsd", "netbsd":
		if display := nonEmpty(lookup, "DISPLAY"); display != "" {
			return ProbeResult{Status: StatusGranted, Message: c.name + " via X11 display " + display}
		}
		if wayland := nonEmpty(lookup, "WAYLAND_DISPLAY"); wayland != "" {
			return ProbeResult{
				Status:   StatusPromptRequired,
				Message:  c.name + " via Wayland " + wayland + " requires XWayland",
				Guidance: "export DISPLAY for the XWayland server",
			}
		}
		return ProbeResult{Status: StatusUnavailable, Message: "no display server found", Guidance: "set DISPLAY to the X11 display of the monitored session"}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: c.name + " unsupported on " + goos}
	}
}

func nonEmpty(lookup LookupEnvFunc, key string) string {
	value, _ := lookup(key)
	return strings.TrimSpace(value)
}

func interpretPermissionFlag(name, value string) ProbeResult {
	status, ok := overrideValues[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return ProbeResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
	result := ProbeResult{Status: status}
	switch status {
	case StatusGranted:
		result.Message = name + " permission pre-authorised via env override"
	case StatusDenied:
		result.Message = name + " permission denied via env override"
		result.Guidance = "grant the permission or unset CAPTURE_* env to re-test"
	case StatusPromptRequired:
		result.Message = name + " permission will prompt at runtime"
	case StatusUnavailable:
		result.Message = name + " permission unavailable on this platform"
	}
	return result
}

// StatusString returns the string representation for manifest integration.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}

// Usable reports whether capture may be attempted under this result.
func (p ProbeResult) Usable() bool {
	return p.Status != StatusDenied && p.Status != StatusUnavailable
}
