package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/pkg/events"
	"github.com/y1024/agi-computer-control/pkg/permissions"
	"github.com/y1024/agi-computer-control/pkg/screenshots"
)

// lookupEnv is swapped in tests to control permission probes.
var lookupEnv permissions.LookupEnvFunc = permissions.DefaultLookupEnv

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Check configuration, input hooks and screen capture support",
		run:         runDoctor,
	}
}

func runDoctor(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config

	fmt.Fprintf(stdout, "Version: %s\n", versionString())
	fmt.Fprintf(stdout, "Config source: %s\n", cfg.Source)

	problems := 0
	if err := cfg.ValidateWorker(); err != nil {
		problems++
		fmt.Fprintf(stdout, "Config: invalid (%v)\n", err)
	} else {
		fmt.Fprintln(stdout, "Config: ok")
	}

	hooks := events.DetectEnvironment(lookupEnv)
	fmt.Fprintf(stdout, "Input hooks: provider=%s available=%t permission=%s\n", hooks.Provider, hooks.Available, hooks.Permission)
	fmt.Fprintf(stdout, "  %s\n", hooks.Message)
	if hooks.Guidance != "" {
		fmt.Fprintf(stdout, "  hint: %s\n", hooks.Guidance)
	}
	if !hooks.Available && (cfg.Capture.KeyboardEnabled || cfg.Capture.PointerEnabled) {
		problems++
	}

	screens := screenshots.DetectEnvironment(lookupEnv)
	fmt.Fprintf(stdout, "Screenshots: provider=%s available=%t permission=%s displays=%d\n", screens.Provider, screens.Available, screens.Permission, screens.Displays)
	fmt.Fprintf(stdout, "  %s\n", screens.Message)
	if screens.Guidance != "" {
		fmt.Fprintf(stdout, "  hint: %s\n", screens.Guidance)
	}
	if !screens.Available && cfg.Capture.ScreenshotsEnabled {
		problems++
	}

	ctx.Logger.Info("doctor finished", "problems", problems)
	if problems > 0 {
		return fmt.Errorf("doctor found %d problem(s)", problems)
	}
	return nil
}
