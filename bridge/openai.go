package bridge

import (
	"context"
	"sync"

	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/llm"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend asks any OpenAI-compatible chat completion endpoint, such as
// a local inference server. It keeps the last memoryTurns exchanges as text
// so the model can follow its own plan between frames.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	memoryTurns int
	logger      *zap.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// NewOpenAIBackend creates the backend. An empty baseURL targets the OpenAI
// API itself.
func NewOpenAIBackend(model, baseURL, apiKey string, memoryTurns int, logger *zap.Logger) *OpenAIBackend {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	// The v2 SDK returns the client by value.
	c := openai.NewClient(options...)
	return &OpenAIBackend{
		client:      &c,
		model:       model,
		memoryTurns: memoryTurns,
		logger:      logger.Named("bridge.openai"),
	}
}

func (o *OpenAIBackend) Name() string { return "openai" }

func (o *OpenAIBackend) Ask(ctx context.Context, req Request) (string, error) {
	o.mu.Lock()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(o.history)+2)
	messages = append(messages, openai.SystemMessage(llm.SystemInstruction))
	messages = append(messages, o.history...)
	o.mu.Unlock()

	messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Context),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL(req.Image)}),
	}))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(0.4),
		MaxTokens:   openai.Int(2048),
	}
	var opts []option.RequestOption
	if req.APIKey != "" {
		opts = append(opts, option.WithAPIKey(req.APIKey))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to send message to OpenAI")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI response has no choices")
	}
	text := resp.Choices[0].Message.Content

	o.remember(req.Context, text)
	return text, nil
}

// remember appends one exchange and drops the oldest beyond the bound.
func (o *OpenAIBackend) remember(contextText, reply string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.memoryTurns <= 0 {
		return
	}
	o.history = append(o.history, openai.UserMessage(contextText), openai.AssistantMessage(reply))
	if excess := len(o.history) - 2*o.memoryTurns; excess > 0 {
		o.history = append(o.history[:0:0], o.history[excess:]...)
	}
}

func (o *OpenAIBackend) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
	o.logger.Debug("Memory cleared")
	return nil
}

// Turns returns the number of remembered exchanges.
func (o *OpenAIBackend) Turns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history) / 2
}
