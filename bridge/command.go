package bridge

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// CommandBackend delegates each decision to an external program, such as a
// model CLI. The program is run as
//
//	<command...> <screenshot.jpg> <context>
//
// and whatever it prints on standard output is the decision text.
type CommandBackend struct {
	args   []string
	logger *zap.Logger
}

func NewCommandBackend(args []string, logger *zap.Logger) (*CommandBackend, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.E(errors.KindProvider, "command backend requires a command")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandBackend{args: append([]string(nil), args...), logger: logger.Named("bridge.command")}, nil
}

func (c *CommandBackend) Name() string { return "command" }

func (c *CommandBackend) Ask(ctx context.Context, req Request) (string, error) {
	frame, err := os.CreateTemp("", "playtest-frame-*.jpg")
	if err != nil {
		return "", errors.Wrapf(err, "could not create frame file")
	}
	defer os.Remove(frame.Name())
	_, err = frame.Write(req.Image)
	if cerr := frame.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "could not write frame file")
	}

	args := append(append([]string(nil), c.args[1:]...), frame.Name(), req.Context)
	cmd := exec.CommandContext(ctx, c.args[0], args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "command execution failed. Output:\n%s", stderr.String())
	}
	c.logger.Debug("Command answered", zap.Int("bytes", len(output)))
	return string(output), nil
}

func (c *CommandBackend) Reset(ctx context.Context) error { return nil }
