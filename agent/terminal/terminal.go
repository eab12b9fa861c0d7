package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/agent"
	"github.com/m4xw311/playtest/session"
)

// Terminal handles the terminal interaction mode for the agent
type Terminal struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// New creates a new Terminal reading commands from in and printing to out.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

func (t *Terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Callbacks returns the callbacks to install on the controller with
// agent.WithCallbacks.
func (t *Terminal) Callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnStep: func(step session.Step) {
			t.printf("Step %d: %s\n", step.Index, step.Action)
			if step.Thought != "" {
				t.printf("  Thought: %s\n", step.Thought)
			}
		},
		OnDecisionFailure: func(err error, consecutive int) {
			t.printf("Warning: no decision (%d/%d): %v\n", consecutive, agent.MaxConsecutiveFailures, err)
		},
		OnExecutionError: func(act action.Action, err error) {
			t.printf("Warning: %s failed: %v\n", act.Type, err)
		},
		OnFinished: func(s *session.Session, reportPaths []string) {
			result := "completed"
			if s.EndedOnFailure {
				result = "failed"
			}
			t.printf("Run %s after %d steps: %s\n", result, s.TotalSteps, s.Note)
			for _, p := range reportPaths {
				t.printf("Report: %s\n", p)
			}
		},
	}
}

// Run starts the controller and drives it to completion while accepting
// commands from the terminal input.
func (t *Terminal) Run(ctx context.Context, c *agent.Controller) (*session.Session, error) {
	if err := c.Start(ctx); err != nil {
		t.printf("Error: %v\n", err)
		return nil, err
	}
	t.printf("Playtest %q started. Type /stop to end the run.\n", c.Session().Name)

	go t.readCommands(c)

	s, err := c.Run(ctx)
	if err != nil {
		t.printf("Error: %v\n", err)
	}
	return s, err
}

func (t *Terminal) readCommands(c *agent.Controller) {
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "":
		case "/stop", "/quit", "/exit":
			t.printf("Stopping after the current step...\n")
			c.Stop()
			return
		case "/status":
			t.printf("State: %s, consecutive failures: %d\n", c.State(), c.Failures())
		default:
			t.printf("Unknown command %q\n", cmd)
		}
		if !c.State().Running() {
			return
		}
	}
}
