package buildinfo

import (
	"runtime/debug"
	"testing"
)

func TestVersionPrecedence(t *testing.T) {
	origVersion, origRead := version, readBuildInfo
	defer func() { version, readBuildInfo = origVersion, origRead }()

	version = ""
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main:     debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
		}, true
	}
	if got := Version(); got != "dev-0123456789ab" {
		t.Fatalf("expected revision version, got %q", got)
	}

	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	if got := Version(); got != "dev" {
		t.Fatalf("expected dev fallback, got %q", got)
	}

	SetVersion("")
	SetVersion("v0.3.0")
	if got := Version(); got != "v0.3.0" {
		t.Fatalf("expected stamped version, got %q", got)
	}
}
