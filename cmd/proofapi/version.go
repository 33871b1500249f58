package main

import (
	"github.com/spf13/cobra"

	"github.com/proofchain/proofapi/version"
)

// NewVersionCommand returns the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Version)
		},
	}
}
