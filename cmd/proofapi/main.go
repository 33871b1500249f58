package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := NewRootCommand()
	cmd.AddCommand(
		NewInitCommand(),
		NewRunCommand(),
		NewVersionCommand(),
	)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
