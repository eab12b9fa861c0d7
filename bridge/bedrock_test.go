package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockBackendAsk(t *testing.T) {
	fake := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"actionType\":"},{"type":"text","text":"\"Wait\"}"}]}`}
	b := newBedrockBackend(fake, "", nil)

	text, err := b.Ask(context.Background(), Request{Image: []byte{0xFF, 0xD8}, Context: "pause screen"})
	require.NoError(t, err)
	assert.Equal(t, `{"actionType":"Wait"}`, text)

	require.NotNil(t, fake.input)
	assert.Equal(t, DefaultBedrockModel, *fake.input.ModelId)

	var body struct {
		Version  string `json:"anthropic_version"`
		System   string `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source struct {
					MediaType string `json:"media_type"`
					Data      string `json:"data"`
				} `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(fake.input.Body, &body))
	assert.Equal(t, "bedrock-2023-05-31", body.Version)
	assert.NotEmpty(t, body.System)
	require.Len(t, body.Messages, 1)
	require.Len(t, body.Messages[0].Content, 2)
	assert.Equal(t, "image", body.Messages[0].Content[0].Type)
	assert.Equal(t, "image/jpeg", body.Messages[0].Content[0].Source.MediaType)
	assert.Equal(t, "/9g=", body.Messages[0].Content[0].Source.Data)
	assert.Equal(t, "pause screen", body.Messages[0].Content[1].Text)
}

func TestBedrockText(t *testing.T) {
	_, err := bedrockText([]byte(`{"error":"throttled"}`))
	assert.ErrorContains(t, err, "throttled")

	_, err = bedrockText([]byte(`{"content":[]}`))
	assert.ErrorContains(t, err, "no text content")

	_, err = bedrockText([]byte(`not json`))
	assert.Error(t, err)
}
