package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/y1024/agi-computer-control/pkg/collector"
)

func newServeCommand() command {
	return command{
		name:        "serve",
		description: "Run the collector that receives worker uploads",
		configure: func(fs *pflag.FlagSet) {
			fs.String("listen", "", "Listen address (default: collector.listen_address)")
		},
		run: runServe,
	}
}

func runServe(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config
	if addr, _ := fs.GetString("listen"); addr != "" {
		cfg.Collector.ListenAddress = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid collector configuration: %w", err)
	}

	server := collector.NewServer(collector.ServerConfig{
		ListenAddress: cfg.Collector.ListenAddress,
		MaxBodyBytes:  cfg.Collector.MaxBodyBytes,
		Logger:        ctx.Logger,
	})

	runCtx, stop := notifyContext(context.Background())
	defer stop()

	fmt.Fprintf(stdout, "Collector listening on %s\n", cfg.Collector.ListenAddress)
	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	ctx.Logger.Info("collector stopped")
	return nil
}
