package bridge

import "context"

// MockReply is the decision returned by MockBackend.
const MockReply = `{
  "thought": "I see the main menu. I should click the Start button.",
  "actionType": "Click",
  "screenPosition": {"x": 0.5, "y": 0.6},
  "targetPosition": {"x": 0, "y": 0},
  "keyName": "",
  "textToType": "",
  "duration": 0.1
}`

// MockBackend always clicks the middle of the screen. It is useful for
// wiring checks without a model.
type MockBackend struct{}

func (MockBackend) Name() string { return "mock" }

func (MockBackend) Ask(ctx context.Context, req Request) (string, error) {
	return MockReply, nil
}

func (MockBackend) Reset(ctx context.Context) error { return nil }
