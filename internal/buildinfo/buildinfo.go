// Package buildinfo reports the version stamped into worker and collector
// binaries.
package buildinfo

import "runtime/debug"

// Overridden at link time:
//
//	-ldflags "-X github.com/y1024/agi-computer-control/internal/buildinfo.version=v1.2.0"
var (
	version       = ""
	readBuildInfo = debug.ReadBuildInfo
)

// SetVersion overrides the reported version; empty values are ignored.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Version returns the stamped version, the module version, or the VCS
// revision of a development build, in that order.
func Version() string {
	if version != "" {
		return version
	}
	info, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return "dev-" + setting.Value[:12]
		}
	}
	return "dev"
}
