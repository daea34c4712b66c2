package openai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/gateway"
)

type fakeChatClient struct {
	resp *openai.ChatCompletion
	err  error
	req  openai.ChatCompletionNewParams
}

func (f *fakeChatClient) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	f.req = params
	return f.resp, f.err
}

func TestGenerateChatCompletionTranslatesResponse(t *testing.T) {
	fake := &fakeChatClient{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{
					Message:      openai.ChatCompletionMessage{Content: "hello there"},
					FinishReason: "stop",
				},
			},
			Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	client, err := New(fake, "gpt-4o-mini")
	require.NoError(t, err)

	resp, err := client.GenerateChatCompletion(context.Background(), gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: "be terse"},
			{Role: gateway.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, "stop", resp.StopReason)
	require.Len(t, fake.req.Messages, 2)
}

func TestGenerateTextWrapsPromptAsUserMessage(t *testing.T) {
	fake := &fakeChatClient{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		},
	}
	client, err := New(fake, "gpt-4o-mini")
	require.NoError(t, err)

	_, err = client.GenerateText(context.Background(), "do the thing", gateway.SamplingParams{})
	require.NoError(t, err)
	require.Len(t, fake.req.Messages, 1)
}

func TestNewRejectsEmptyDefaultModel(t *testing.T) {
	_, err := New(&fakeChatClient{}, "")
	assert.Error(t, err)
}
