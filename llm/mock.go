package llm

import (
	"context"
	"sync"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
)

// MockReply is one scripted outcome of a Mock request: either raw model text
// to be parsed or an error.
type MockReply struct {
	Text string
	Err  error
}

// Mock replays scripted replies, for tests and dry runs. Once the script is
// exhausted it answers with the default Wait action.
type Mock struct {
	Replies []MockReply
	// InitErr is returned by Initialize when set.
	InitErr error
	// Block, when set, is waited on by every request before it answers.
	Block <-chan struct{}

	mu       sync.Mutex
	next     int
	contexts []string
	resets   int
}

func (m *Mock) Initialize(ctx context.Context) error {
	return m.InitErr
}

func (m *Mock) RequestAction(ctx context.Context, frame *capture.Frame, contextText string) (action.Action, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	m.contexts = append(m.contexts, contextText)
	if m.next >= len(m.Replies) {
		m.mu.Unlock()
		return action.Default(), nil
	}
	reply := m.Replies[m.next]
	m.next++
	m.mu.Unlock()

	if reply.Err != nil {
		return action.Action{}, reply.Err
	}
	return action.Parse(reply.Text)
}

func (m *Mock) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

// Contexts returns the context strings received so far.
func (m *Mock) Contexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.contexts...)
}

// Resets returns how many times Reset was called.
func (m *Mock) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
