// Package anthropic implements gateway.Model over the Claude Messages API
// using the official github.com/anthropics/anthropic-sdk-go client. System
// messages are extracted to the dedicated System field per spec §4.11.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/radiantcore/corerun/internal/gateway"
)

// temperatureRange is Claude's valid sampling range (spec §4.11: "providers
// whose valid range differs from the common one ... clamp silently with a
// warning"). The common range used elsewhere in this gateway is 0..2
// (OpenAI-style); Claude's is 0..1.
var temperatureRange = gateway.ClampRange{Min: 0, Max: 1}

const defaultMaxTokens = 4096

// MessagesClient captures the subset of the Anthropic SDK this adapter
// calls, so tests can substitute a fake without a live API key.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// WarnLogger receives a clamp or classification warning. *zap.SugaredLogger
// satisfies this with its Warnw method signature loosely; callers typically
// pass a small adapter closure instead.
type WarnLogger func(msg string, keysAndValues ...any)

// Client adapts Claude to gateway.Model.
type Client struct {
	messages     MessagesClient
	defaultModel string
	warn         WarnLogger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithWarnLogger attaches a clamp/classification warning sink.
func WithWarnLogger(w WarnLogger) Option { return func(c *Client) { c.warn = w } }

// New builds a Client from an already-constructed MessagesClient, letting
// callers inject a fake in tests.
func New(messages MessagesClient, defaultModel string, opts ...Option) (*Client, error) {
	if messages == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	c := &Client{messages: messages, defaultModel: defaultModel, warn: func(string, ...any) {}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	sdk := anthropic.NewClient(option.WithAPIKey(apiKey))
	return New(&sdkMessagesClient{sdk: sdk}, defaultModel, opts...)
}

type sdkMessagesClient struct{ sdk anthropic.Client }

func (s *sdkMessagesClient) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.sdk.Messages.New(ctx, params)
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
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	system, rest := gateway.SplitSystemMessages(req.Messages)

	msgs := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case gateway.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(req.Params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	temperature, clamped := gateway.ClampTemperature(req.Params.Temperature, temperatureRange)
	if clamped {
		c.warn("anthropic: temperature clamped to provider range", "requested", req.Params.Temperature, "clamped", temperature)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
		System:    []anthropic.TextBlockParam{{Text: system}},
	}
	if temperature != 0 {
		params.Temperature = anthropic.Float(temperature)
	}
	if req.Params.TopP != 0 {
		params.TopP = anthropic.Float(req.Params.TopP)
	}
	if len(req.Params.StopSequences) > 0 {
		params.StopSequences = req.Params.StopSequences
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return gateway.Response{}, classifyError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return gateway.Response{
		Text: text.String(),
		Usage: gateway.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		StopReason: string(resp.StopReason),
	}, nil
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &gateway.ProviderError{
			Provider:  "anthropic",
			Operation: "messages.new",
			Kind:      gateway.ProviderErrorUnavailable,
			Retryable: true,
			Cause:     err,
		}
	}
	kind := gateway.ClassifyHTTPStatus(apiErr.StatusCode, apiErr.Type)
	return &gateway.ProviderError{
		Provider:  "anthropic",
		Operation: "messages.new",
		HTTP:      apiErr.StatusCode,
		Kind:      kind,
		Code:      apiErr.Type,
		Message:   apiErr.Message,
		Retryable: kind == gateway.ProviderErrorRateLimited || kind == gateway.ProviderErrorUnavailable,
		Cause:     err,
	}
}
