package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/pkg/session"
	"github.com/y1024/agi-computer-control/pkg/store"
)

func newPurgeCommand() command {
	return command{
		name:        "purge",
		description: "Empty the capture logs and delete pending screenshots",
		configure: func(fs *pflag.FlagSet) {
			fs.String("output-dir", "", "Session directory (default: paths.output_dir)")
		},
		run: runPurge,
	}
}

func runPurge(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	dir := ctx.Config.Paths.OutputDir
	if override, _ := fs.GetString("output-dir"); override != "" {
		dir = override
	}
	if dir == "" {
		return fmt.Errorf("output directory must not be empty")
	}

	st, err := store.Open(store.Options{Layout: session.BuildLayout(dir), DrainMode: ctx.Config.Upload.DrainMode, Clock: timeNow})
	if err != nil {
		return fmt.Errorf("open session directory: %w", err)
	}
	defer st.Close()

	if err := st.PurgeAll(); err != nil {
		return fmt.Errorf("purge %s: %w", dir, err)
	}
	ctx.Logger.Info("session directory purged", "output_dir", dir)
	fmt.Fprintf(stdout, "Purged %s\n", dir)
	return nil
}
