// Package uicontext produces the textual description of the application's
// current UI state that accompanies each capture.
package uicontext

import (
	"context"
	"fmt"
)

// Unavailable is substituted for the state description when a source fails.
const Unavailable = "Context Info Not Available"

type Source interface {
	Describe(ctx context.Context) (string, error)
}

// Static describes every state with the same text.
type Static string

func (s Static) Describe(ctx context.Context) (string, error) {
	return string(s), nil
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (string, error)

func (fn Func) Describe(ctx context.Context) (string, error) { return fn(ctx) }

// Compose builds the context string sent with a capture.
func Compose(gameDescription, state string) string {
	return fmt.Sprintf("[Game Description]\n%s\n\n[Current State]\n%s", gameDescription, state)
}
