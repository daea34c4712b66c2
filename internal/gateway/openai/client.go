// Package openai implements gateway.Model over the Chat Completions API
// using the official github.com/openai/openai-go client. OpenAI-style
// providers keep system messages inline in the chat array per spec §4.11,
// so unlike the Claude/Bedrock adapters this one does not call
// gateway.SplitSystemMessages.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/radiantcore/corerun/internal/gateway"
)

// temperatureRange is the common 0..2 range OpenAI's Chat Completions API
// accepts; no clamping is generally needed, but it is still applied for
// uniformity with the other adapters.
var temperatureRange = gateway.ClampRange{Min: 0, Max: 2}

// ChatClient captures the subset of the OpenAI SDK this adapter calls.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// WarnLogger receives a clamp or classification warning.
type WarnLogger func(msg string, keysAndValues ...any)

// Client adapts OpenAI Chat Completions to gateway.Model.
type Client struct {
	chat         ChatClient
	defaultModel string
	warn         WarnLogger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithWarnLogger attaches a clamp/classification warning sink.
func WithWarnLogger(w WarnLogger) Option { return func(c *Client) { c.warn = w } }

// New builds a Client from an already-constructed ChatClient.
func New(chat ChatClient, defaultModel string, opts ...Option) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	c := &Client{chat: chat, defaultModel: defaultModel, warn: func(string, ...any) {}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	sdk := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&sdkChatClient{sdk: sdk}, defaultModel, opts...)
}

type sdkChatClient struct{ sdk openai.Client }

func (s *sdkChatClient) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return s.sdk.Chat.Completions.New(ctx, params)
}

// GenerateText implements gateway.Model.
func (c *Client) GenerateText(ctx context.Context, prompt string, params gateway.SamplingParams) (gateway.Response, error) {
	return c.GenerateChatCompletion(ctx, gateway.Request{
		Messages: []gateway.Message{{Role: gateway.RoleUser, Content: prompt}},
		Params:   params,
	})
}

// GenerateChatCompletion implements gateway.Model.
func (c *Client) GenerateChatCompletion(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	if len(req.Messages) == 0 {
		return gateway.Response{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case gateway.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case gateway.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	temperature, clamped := gateway.ClampTemperature(req.Params.Temperature, temperatureRange)
	if clamped {
		c.warn("openai: temperature clamped to provider range", "requested", req.Params.Temperature, "clamped", temperature)
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	if temperature != 0 {
		params.Temperature = openai.Float(temperature)
	}
	if req.Params.TopP != 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Params.MaxTokens))
	}
	if len(req.Params.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Params.StopSequences}
	}
	if req.Params.ResponseFormat == "json" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return gateway.Response{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return gateway.Response{}, &gateway.ProviderError{Provider: "openai", Operation: "chat.completions.new", Kind: gateway.ProviderErrorUnknown, Message: "no choices returned"}
	}

	choice := resp.Choices[0]
	return gateway.Response{
		Text: choice.Message.Content,
		Usage: gateway.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		StopReason: string(choice.FinishReason),
	}, nil
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &gateway.ProviderError{
			Provider:  "openai",
			Operation: "chat.completions.new",
			Kind:      gateway.ProviderErrorUnavailable,
			Retryable: true,
			Cause:     err,
		}
	}
	kind := gateway.ClassifyHTTPStatus(apiErr.StatusCode, apiErr.Type)
	return &gateway.ProviderError{
		Provider:  "openai",
		Operation: "chat.completions.new",
		HTTP:      apiErr.StatusCode,
		Kind:      kind,
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Retryable: kind == gateway.ProviderErrorRateLimited || kind == gateway.ProviderErrorUnavailable,
		Cause:     err,
	}
}
