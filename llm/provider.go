package llm

import (
	"context"
	"os"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// DecisionProvider turns a capture and a context string into the next action.
//
// Initialize is called once before the first request and fails with a
// provider error when the provider cannot be used at all. RequestAction
// returns a network, protocol or parse error when no decision was obtained.
type DecisionProvider interface {
	Initialize(ctx context.Context) error
	RequestAction(ctx context.Context, frame *capture.Frame, contextText string) (action.Action, error)
}

// Resetter is implemented by providers that keep conversational memory
// between requests.
type Resetter interface {
	Reset(ctx context.Context) error
}

// SystemInstruction is sent with every direct request.
const SystemInstruction = `You are an autonomous QA agent testing a game.
Analyze the provided game screen image and the UI context text.
Decide the next action to test the game or find bugs.

RESPONSE FORMAT:
You MUST respond ONLY with a valid JSON object. Do not include markdown code blocks or any explanation outside the JSON.

JSON SCHEMA:
{
  "thought": "Reasoning behind the action",
  "actionType": "Click" | "Drag" | "Wait" | "KeyPress" | "Type",
  "screenPosition": { "x": 0.0 to 1.0, "y": 0.0 to 1.0 },
  "targetPosition": { "x": 0.0 to 1.0, "y": 0.0 to 1.0 },
  "keyName": "Space" | "W" | "Enter" ... (if KeyPress),
  "textToType": "string" (if Type),
  "duration": float (seconds, for Wait)
}

Coordinates are normalized to the screen, with (0, 0) at the top-left corner.`

// Default models per provider kind.
const (
	DefaultFastModel      = "gemini-2.5-flash"
	DefaultHighModel      = "gemini-2.5-pro"
	DefaultReasoningModel = "claude-opus-4-1-20250805"
)

// New builds the provider variant selected by cfg. It performs no I/O;
// problems with credentials or reachability surface from Initialize.
func New(cfg config.Provider, logger *zap.Logger) (DecisionProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Kind {
	case config.KindBridge:
		if cfg.Endpoint == "" {
			return nil, errors.E(errors.KindProvider, "bridge provider requires an endpoint")
		}
		return NewBridge(cfg.Endpoint, cfg.Credential, cfg.Timeout(), logger), nil
	case config.KindFastDirect:
		return NewGemini(modelOr(cfg.Model, DefaultFastModel), credential(cfg.Credential, "GEMINI_API_KEY"), cfg.Timeout(), logger), nil
	case config.KindHighDirect:
		return NewGemini(modelOr(cfg.Model, DefaultHighModel), credential(cfg.Credential, "GEMINI_API_KEY"), cfg.Timeout(), logger), nil
	case config.KindReasoningDirect:
		return NewAnthropic(modelOr(cfg.Model, DefaultReasoningModel), credential(cfg.Credential, "ANTHROPIC_API_KEY"), cfg.Timeout(), logger), nil
	default:
		return nil, errors.E(errors.KindProvider, "unknown provider kind '%s'", cfg.Kind)
	}
}

func credential(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

// Prompt joins the system instruction and the per-request context the way
// the single-part generation endpoint expects it.
func Prompt(contextText string) string {
	return SystemInstruction + "\n\n" + contextText
}
