package events

import (
	"github.com/y1024/agi-computer-control/pkg/permissions"
)

// Environment summarises global input hook support.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

// DetectEnvironment reports whether keyboard and pointer capture can start.
func DetectEnvironment(lookup permissions.LookupEnvFunc) Environment {
	accessibility := permissions.ProbeAccessibility(lookup)
	env := Environment{
		Provider:   providerHook,
		Permission: accessibility.StatusString(),
		Message:    accessibility.Message,
		Guidance:   accessibility.Guidance,
		Available:  providerHook != "unavailable" && accessibility.Usable(),
	}
	if providerHook == "unavailable" {
		env.Message = "binary built without cgo; input hooks disabled"
		env.Guidance = "rebuild with CGO_ENABLED=1"
	}
	if env.Message == "" {
		env.Message = "accessibility state unknown"
	}
	return env
}
