// Package bridge implements the companion decision server spoken to by
// llm.Bridge. It accepts a screenshot and UI context on POST /ask, asks a
// model backend for the next action and answers with the canonical action
// JSON.
package bridge

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// Request is one /ask call as seen by a backend.
type Request struct {
	// Image is the JPEG screenshot.
	Image   []byte
	Context string
	// APIKey is the optional per-request credential sent by the client.
	APIKey string
}

// Backend produces raw decision text for a request. The server validates the
// text before answering.
type Backend interface {
	Name() string
	Ask(ctx context.Context, req Request) (string, error)
	// Reset drops any conversational memory.
	Reset(ctx context.Context) error
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.Bridge, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "mock":
		return MockBackend{}, nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, errors.E(errors.KindProvider, "OPENAI_API_KEY environment variable not set")
		}
		return NewOpenAIBackend(cfg.Model, cfg.BaseURL, apiKey, cfg.MemoryTurns, logger), nil
	case "bedrock":
		return NewBedrockBackend(ctx, cfg.Model, cfg.BaseURL, logger)
	case "command":
		return NewCommandBackend(cfg.Command, logger)
	default:
		return nil, errors.E(errors.KindProvider, "unknown bridge backend '%s'", cfg.Backend)
	}
}

func dataURL(image []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
}
