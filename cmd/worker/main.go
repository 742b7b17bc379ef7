package main

import (
	"fmt"
	"os"

	"github.com/y1024/agi-computer-control/internal/cmd"
)

func main() {
	root := cmd.NewRootCommand("worker")
	root.SetDefaultCommand("run")
	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}
