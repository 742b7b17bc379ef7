package main

import (
	"fmt"
	"os"

	"github.com/y1024/agi-computer-control/internal/cmd"
)

func main() {
	root := cmd.NewRootCommand("collector")
	root.SetDefaultCommand("serve")
	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}
