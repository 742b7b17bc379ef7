package screenshots

import (
	"fmt"

	"github.com/kbinani/screenshot"

	"github.com/y1024/agi-computer-control/pkg/permissions"
)

// Environment describes screenshot capture availability.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Displays   int
	Message    string
	Guidance   string
}

// DetectEnvironment reports screenshot backend support and permissions.
func DetectEnvironment(lookup permissions.LookupEnvFunc) Environment {
	screenRecording := permissions.ProbeScreenRecording(lookup)
	env := Environment{
		Provider:   providerDisplay,
		Permission: screenRecording.StatusString(),
		Message:    screenRecording.Message,
		Guidance:   screenRecording.Guidance,
		Available:  screenRecording.Usable(),
	}
	if env.Available {
		env.Displays = screenshot.NumActiveDisplays()
		if env.Displays == 0 {
			env.Available = false
			env.Message = "no active displays detected"
		} else if env.Message == "" {
			env.Message = fmt.Sprintf("%d active display(s)", env.Displays)
		}
	}
	if env.Message == "" {
		env.Message = "screen recording state unknown"
	}
	return env
}
