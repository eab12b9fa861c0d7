package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	geminiTemperature     = 0.4
	geminiMaxOutputTokens = 2048
)

// Gemini requests decisions from the Google Gemini API. It serves the fast
// and high-capability provider kinds, which differ only by model.
type Gemini struct {
	modelName string
	apiKey    string
	timeout   time.Duration
	logger    *zap.Logger

	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini provider. The client is created by Initialize.
func NewGemini(modelName, apiKey string, timeout time.Duration, logger *zap.Logger) *Gemini {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		modelName: modelName,
		apiKey:    apiKey,
		timeout:   timeout,
		logger:    logger.Named("llm.gemini"),
	}
}

// Initialize requires the GEMINI_API_KEY environment variable (or a
// configured credential) to be set.
func (g *Gemini) Initialize(ctx context.Context) error {
	if g.apiKey == "" {
		return errors.E(errors.KindProvider, "GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return errors.Wrap(errors.KindProvider, err, "failed to create genai client")
	}

	model := client.GenerativeModel(g.modelName)
	model.SetTemperature(geminiTemperature)
	model.SetMaxOutputTokens(geminiMaxOutputTokens)

	g.client = client
	g.model = model
	g.logger.Info("Initialized", zap.String("model", g.modelName))
	return nil
}

// RequestAction sends the prompt text followed by the JPEG capture.
func (g *Gemini) RequestAction(ctx context.Context, frame *capture.Frame, contextText string) (action.Action, error) {
	if g.model == nil {
		return action.Action{}, errors.E(errors.KindProvider, "gemini provider is not initialized")
	}
	image, err := frame.JPEG(capture.RequestQuality)
	if err != nil {
		return action.Action{}, errors.Wrap(errors.KindProtocol, err, "could not encode capture")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(Prompt(contextText)), genai.ImageData("jpeg", image))
	if err != nil {
		return action.Action{}, errors.Wrap(classifyGeminiError(err), err, "failed to send message to Gemini")
	}

	text, err := geminiText(resp)
	if err != nil {
		return action.Action{}, err
	}
	return action.Parse(text)
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// geminiText returns the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.E(errors.KindProtocol, "received an empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.E(errors.KindProtocol, "Gemini response has no text part")
	}
	return sb.String(), nil
}

// classifyGeminiError separates transport failures from answers the API
// gave but that carry no decision.
func classifyGeminiError(err error) errors.Kind {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return errors.KindProtocol
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.KindNetwork
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return errors.KindNetwork
		default:
			return errors.KindProtocol
		}
	}
	return errors.KindNetwork
}
