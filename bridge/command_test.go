package bridge

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decider answers with a Wait whose thought echoes the context, after
// checking that the frame file is not empty.
var decider = []string{"sh", "-c", `test -s "$1" && printf '{"actionType":"Wait","duration":2,"thought":"%s"}' "$2"`, "decider"}

func TestCommandBackendThroughBridge(t *testing.T) {
	b, err := NewBackend(context.Background(), config.Bridge{Backend: "command", Command: decider}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(b, "", nil))
	defer srv.Close()

	act, err := llm.NewBridge(srv.URL, "", 5*time.Second, nil).RequestAction(context.Background(), newFrame(), "level two")
	require.NoError(t, err)
	assert.Equal(t, action.Wait, act.Type)
	assert.Equal(t, 2.0, act.Duration)
	assert.Equal(t, "level two", act.Thought)
}

func TestCommandBackendErrors(t *testing.T) {
	_, err := NewCommandBackend(nil, nil)
	assert.True(t, errors.IsKind(err, errors.KindProvider))

	b, err := NewCommandBackend([]string{"sh", "-c", "echo model offline >&2; exit 1"}, nil)
	require.NoError(t, err)
	_, err = b.Ask(context.Background(), Request{Image: []byte{1}, Context: "ctx"})
	assert.ErrorContains(t, err, "model offline")
}
