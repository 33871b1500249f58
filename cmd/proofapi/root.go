package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/proofchain/proofapi/config"
)

var homeDir string

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proofapi"
	}
	return filepath.Join(home, ".proofapi")
}

// NewRootCommand constructs the root command-line entry point.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "proofapi",
		Short:        "Trustless transaction inclusion proof service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&homeDir, "home", defaultHome(), "directory for config files")
	return cmd
}

func configPath() string {
	return filepath.Join(homeDir, "config.toml")
}

// loadConfig reads the config file if it exists, falling back to defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath())
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
