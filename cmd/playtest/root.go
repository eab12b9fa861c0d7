package main

import (
	"github.com/m4xw311/playtest/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "playtest",
		Short:         "An autonomous agent that play-tests games from screenshots.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default is ~/.playtest/config.yaml layered with ./.playtest/config.yaml)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newReportCmd())
	return root
}

// loadConfig reads path when given, otherwise the layered user and project
// configuration.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadConfig()
}
