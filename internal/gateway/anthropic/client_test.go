package anthropic

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/gateway"
)

type fakeMessagesClient struct {
	resp *anthropic.Message
	err  error
	req  anthropic.MessageNewParams
}

func (f *fakeMessagesClient) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	f.req = params
	return f.resp, f.err
}

func TestGenerateChatCompletionExtractsSystemMessages(t *testing.T) {
	fake := &fakeMessagesClient{
		resp: &anthropic.Message{
			Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "hi there"}},
			StopReason: "end_turn",
			Usage:      anthropic.Usage{InputTokens: 12, OutputTokens: 4},
		},
	}
	client, err := New(fake, "claude-sonnet-4")
	require.NoError(t, err)

	resp, err := client.GenerateChatCompletion(context.Background(), gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: "be terse"},
			{Role: gateway.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.Len(t, fake.req.System, 1)
	assert.Equal(t, "be terse", fake.req.System[0].Text)
	require.Len(t, fake.req.Messages, 1)
}

func TestGenerateChatCompletionDefaultsMaxTokens(t *testing.T) {
	fake := &fakeMessagesClient{resp: &anthropic.Message{}}
	client, err := New(fake, "claude-sonnet-4")
	require.NoError(t, err)

	_, err = client.GenerateChatCompletion(context.Background(), gateway.Request{
		Messages: []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxTokens), fake.req.MaxTokens)
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil, "claude-sonnet-4")
	assert.Error(t, err)
}
