package llm

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

const (
	anthropicMaxTokens      = 16000
	anthropicThinkingBudget = 10000
)

// Anthropic requests decisions from the Anthropic Messages API with extended
// thinking enabled. It serves the reasoning provider kind.
type Anthropic struct {
	model   string
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
	opts    []option.RequestOption

	client *anthropic.Client
}

// NewAnthropic creates an Anthropic provider. Extra request options are
// applied after the defaults, which disable SDK retries.
func NewAnthropic(model, apiKey string, timeout time.Duration, logger *zap.Logger, opts ...option.RequestOption) *Anthropic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anthropic{
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
		logger:  logger.Named("llm.anthropic"),
		opts:    opts,
	}
}

// Initialize requires the ANTHROPIC_API_KEY environment variable (or a
// configured credential) to be set.
func (a *Anthropic) Initialize(ctx context.Context) error {
	if a.apiKey == "" {
		return errors.E(errors.KindProvider, "ANTHROPIC_API_KEY environment variable not set")
	}

	opts := append([]option.RequestOption{
		option.WithAPIKey(a.apiKey),
		option.WithMaxRetries(0),
	}, a.opts...)
	client := anthropic.NewClient(opts...)
	a.client = &client
	a.logger.Info("Initialized", zap.String("model", a.model))
	return nil
}

// RequestAction sends one user turn holding the capture and the context and
// returns the first text block of the answer.
func (a *Anthropic) RequestAction(ctx context.Context, frame *capture.Frame, contextText string) (action.Action, error) {
	if a.client == nil {
		return action.Action{}, errors.E(errors.KindProvider, "anthropic provider is not initialized")
	}
	image, err := frame.JPEG(capture.RequestQuality)
	if err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "could not encode capture")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(contextText),
			),
		},
		Thinking: anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: anthropicThinkingBudget},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return action.Action{}, errors.Wrap(classifyAnthropicError(err), err, "failed to send message to Anthropic")
	}

	text, err := anthropicText(resp)
	if err != nil {
		return action.Action{}, err
	}
	return action.Parse(text)
}

func anthropicText(resp *anthropic.Message) (string, error) {
	if resp == nil {
		return "", errors.E(errors.KindProtocol, "received an empty response from Anthropic")
	}
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			return c.Text, nil
		}
	}
	return "", errors.E(errors.KindProtocol, "Anthropic response has no text block")
}

func classifyAnthropicError(err error) errors.Kind {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errors.KindProtocol
	}
	return errors.KindNetwork
}
