package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4xw311/playtest/bridge"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Bridge
	)
	cmd := &cobra.Command{
		Use:           "playtest-bridge",
		Short:         "Serve play-test decisions over HTTP for the bridge provider",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			applyOverrides(&cfg.Bridge, overrides)

			logger := observability.NewLogger(cfg.Logging)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := bridge.NewBackend(ctx, cfg.Bridge, logger)
			if err != nil {
				return err
			}
			logger.Info("Starting bridge",
				zap.String("listen", cfg.Bridge.Listen),
				zap.String("backend", backend.Name()),
				zap.String("model", cfg.Bridge.Model))
			return bridge.NewServer(backend, cfg.Bridge.DebugFrame, logger).ListenAndServe(ctx, cfg.Bridge.Listen)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default is the layered ~/.playtest and ./.playtest config)")
	flags.StringVarP(&overrides.Listen, "listen", "l", "", "address to listen on")
	flags.StringVarP(&overrides.Backend, "backend", "b", "", "decision backend: mock, openai, bedrock or command")
	flags.StringVarP(&overrides.Model, "model", "m", "", "model name or Bedrock model ID")
	flags.StringVar(&overrides.BaseURL, "base-url", "", "OpenAI-compatible base URL or Bedrock endpoint")
	flags.StringVar(&overrides.DebugFrame, "debug-frame", "", "write the last received screenshot to this file")
	flags.IntVar(&overrides.MemoryTurns, "memory-turns", 0, "exchanges remembered between resets (openai backend)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadConfig()
}

// applyOverrides copies the non-empty command-line values over cfg.
func applyOverrides(cfg *config.Bridge, o config.Bridge) {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.DebugFrame != "" {
		cfg.DebugFrame = o.DebugFrame
	}
	if o.MemoryTurns > 0 {
		cfg.MemoryTurns = o.MemoryTurns
	}
}
