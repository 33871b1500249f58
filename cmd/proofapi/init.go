package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proofchain/proofapi/config"
)

// NewInitCommand returns the command that writes a default config file.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(homeDir, 0700); err != nil {
				return err
			}
			path := configPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists at %s", path)
			}
			if err := config.WriteConfigFile(path, config.DefaultConfig()); err != nil {
				return err
			}
			cmd.Printf("wrote config file to %s\n", path)
			return nil
		},
	}
}
