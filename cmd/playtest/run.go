package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/agent"
	"github.com/m4xw311/playtest/agent/terminal"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/executor"
	"github.com/m4xw311/playtest/observability"
	"github.com/m4xw311/playtest/uicontext"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type runOptions struct {
	provider string
	session  string
	maxSteps int
	noReport bool
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play-test the game until stopped",
		Long: `Run captures the game screen, asks the configured provider for the next
action, executes it and repeats. Type /stop or press Ctrl-C to end the run;
a second Ctrl-C aborts immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if opts.provider != "" {
				cfg.Provider.Kind = config.ProviderKind(opts.provider)
			}
			if opts.session != "" {
				cfg.Run.SessionName = opts.session
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.Run.MaxSteps = opts.maxSteps
			}
			if opts.noReport {
				cfg.Run.Report = false
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := observability.New(cfg.Logging, zapcore.AddSync(cmd.ErrOrStderr()))
			defer logger.Sync()
			return runPlaytest(cmd.Context(), cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "provider kind: bridge, fast, high or reasoning")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "session name used for report files")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "stop after this many steps (0 for no limit)")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "do not write a report when the run ends")
	return cmd
}

func runPlaytest(ctx context.Context, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) error {
	source, err := newCaptureSource(cfg.Capture)
	if err != nil {
		return err
	}
	uiContext, closeContext, err := newContextSource(ctx, cfg.Context, logger)
	if err != nil {
		return err
	}
	defer closeContext()
	exec, closeExecutor, err := newExecutor(ctx, cfg.Executor, logger)
	if err != nil {
		return err
	}
	defer closeExecutor()

	term := terminal.New(in, out)
	controller := agent.New(cfg, source, uiContext, exec,
		agent.WithLogger(logger),
		agent.WithCallbacks(term.Callbacks()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			logger.Info("Interrupt received, stopping after the current step")
			controller.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = term.Run(ctx, controller)
	return err
}

func newCaptureSource(cfg config.Capture) (capture.Source, error) {
	if cfg.Dir == "" {
		return nil, errors.E(errors.KindProvider, "capture.dir must name a directory of frames")
	}
	return capture.NewDir(cfg.Dir, capture.DirOptions{
		Pattern:   cfg.Pattern,
		Loop:      cfg.Loop,
		MaxWidth:  cfg.MaxWidth,
		MaxHeight: cfg.MaxHeight,
	})
}

// newContextSource returns a nil source when nothing is configured; the
// controller then reports the context as unavailable.
func newContextSource(ctx context.Context, cfg config.Context, logger *zap.Logger) (uicontext.Source, func(), error) {
	if cfg.MCP != nil {
		m, err := uicontext.NewMCP(ctx, *cfg.MCP, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			if err := m.Close(); err != nil {
				logger.Warn("Failed to close MCP session", zap.Error(err))
			}
		}, nil
	}
	if len(cfg.Command) > 0 {
		c, err := uicontext.NewCommand(cfg.Command)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	if cfg.Static != "" {
		return uicontext.Static(cfg.Static), func() {}, nil
	}
	return nil, func() {}, nil
}

func newExecutor(ctx context.Context, cfg config.Executor, logger *zap.Logger) (executor.Executor, func(), error) {
	screen := executor.Screen{
		Width:  cfg.ScreenWidth,
		Height: cfg.ScreenHeight,
		Origin: action.Origin(cfg.Origin),
	}
	if cfg.Kind == "websocket" {
		timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
		ws, err := executor.Dial(ctx, cfg.URL, screen, timeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { ws.Close() }, nil
	}
	return executor.NewLog(logger, screen), func() {}, nil
}
