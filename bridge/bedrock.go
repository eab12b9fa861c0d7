package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/llm"
	"go.uber.org/zap"
)

// DefaultBedrockModel is used when no model is configured.
const DefaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockBackend asks an Anthropic model hosted on AWS Bedrock. Credentials
// come from the default AWS configuration chain.
type BedrockBackend struct {
	client  modelInvoker
	modelID string
	logger  *zap.Logger
}

// NewBedrockBackend loads the AWS configuration and creates the backend.
// endpoint overrides the Bedrock runtime endpoint; BEDROCK_ENDPOINT_URL is
// used when it is empty.
func NewBedrockBackend(ctx context.Context, modelID, endpoint string, logger *zap.Logger) (*BedrockBackend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := bedrockRegion(); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.KindProvider, err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if endpoint == "" {
		endpoint = os.Getenv("BEDROCK_ENDPOINT_URL")
	}
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newBedrockBackend(client, modelID, logger), nil
}

func newBedrockBackend(client modelInvoker, modelID string, logger *zap.Logger) *BedrockBackend {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockBackend{client: client, modelID: modelID, logger: logger.Named("bridge.bedrock")}
}

func bedrockRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return os.Getenv("AWS_DEFAULT_REGION")
}

func (b *BedrockBackend) Name() string { return "bedrock" }

func (b *BedrockBackend) Ask(ctx context.Context, req Request) (string, error) {
	body, err := bedrockRequest(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create Anthropic request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return bedrockText(resp.Body)
}

// Reset is a no-op; every request is a single turn.
func (b *BedrockBackend) Reset(ctx context.Context) error { return nil }

// bedrockRequest builds the Anthropic messages body for InvokeModel.
func bedrockRequest(req Request) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        2048,
		"temperature":       0.4,
		"system":            llm.SystemInstruction,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "image",
						"source": map[string]interface{}{
							"type":       "base64",
							"media_type": "image/jpeg",
							"data":       base64.StdEncoding.EncodeToString(req.Image),
						},
					},
					{
						"type": "text",
						"text": req.Context,
					},
				},
			},
		},
	}
	return json.Marshal(request)
}

// bedrockText joins the text blocks of a messages response.
func bedrockText(body []byte) (string, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return "", errors.New("Bedrock API error: %v", response.Error)
	}
	var sb strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("Bedrock response has no text content")
	}
	return sb.String(), nil
}
