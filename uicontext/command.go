package uicontext

import (
	"context"
	"os/exec"
	"strings"

	"github.com/m4xw311/playtest/errors"
)

// Command runs an external UI dumper on every step, for example a script
// that prints the accessibility tree of the game window. Its standard output
// is the state text.
type Command struct {
	args []string
}

// NewCommand creates a Command source. args[0] is the program.
func NewCommand(args []string) (*Command, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.E(errors.KindProvider, "context command is empty")
	}
	return &Command{args: append([]string(nil), args...)}, nil
}

func (c *Command) Describe(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "context command failed. Output:\n%s", stderr.String())
	}
	state := strings.TrimSpace(string(output))
	if state == "" {
		return "", errors.New("context command printed nothing")
	}
	return state, nil
}
