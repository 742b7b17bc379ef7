package cmd

import (
	"github.com/spf13/pflag"
	"fmt"
	"io"
)

func newVersionCommand() command {
	return command{
		name:        "version",
		description: "Print the CLI version information",
		skipInit:    true,
		run: func(fs *pflag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
			_, err := fmt.Fprintln(stdout, versionString())
			return err
		},
	}
}
