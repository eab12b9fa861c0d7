// Package executor turns decided actions into input on the application under
// test. Execution is asynchronous: Execute returns a channel that yields
// exactly one value, nil on success, once the action has completed.
package executor

import (
	"context"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

type Executor interface {
	Execute(ctx context.Context, act action.Action) <-chan error
}

// Screen is the pixel space actions are mapped onto.
type Screen struct {
	Width  int
	Height int
	Origin action.Origin
}

// Pixel is an action's positions in screen pixels.
type Pixel struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	TX int `json:"tx"`
	TY int `json:"ty"`
}

// Map returns the pixel positions for act, or nil when the screen size is
// unknown.
func (s Screen) Map(act action.Action) *Pixel {
	if s.Width <= 0 || s.Height <= 0 {
		return nil
	}
	x, y := act.ScreenPosition.Pixels(s.Width, s.Height, s.Origin)
	tx, ty := act.TargetPosition.Pixels(s.Width, s.Height, s.Origin)
	return &Pixel{X: x, Y: y, TX: tx, TY: ty}
}

// Func adapts a synchronous function to Executor. The function runs on its
// own goroutine; a non-nil result is reported as an execution error.
type Func func(ctx context.Context, act action.Action) error

func (fn Func) Execute(ctx context.Context, act action.Action) <-chan error {
	done := make(chan error, 1)
	go func() {
		if err := fn(ctx, act); err != nil {
			done <- errors.Wrap(errors.KindExecution, err, "executing %s", act.Type)
			return
		}
		done <- nil
	}()
	return done
}

// Log is a dry-run executor: it records each action and completes at once.
type Log struct {
	logger *zap.Logger
	screen Screen
}

func NewLog(logger *zap.Logger, screen Screen) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("executor"), screen: screen}
}

func (l *Log) Execute(ctx context.Context, act action.Action) <-chan error {
	fields := []zap.Field{
		zap.String("type", string(act.Type)),
		zap.String("details", act.Summary()),
	}
	if px := l.screen.Map(act); px != nil && (act.Type == action.Click || act.Type == action.Drag) {
		fields = append(fields, zap.Int("px", px.X), zap.Int("py", px.Y))
	}
	l.logger.Info("Dry run action", fields...)

	done := make(chan error, 1)
	done <- nil
	return done
}
