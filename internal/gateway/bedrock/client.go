// Package bedrock implements gateway.Model over the Bedrock Converse API
// using github.com/aws/aws-sdk-go-v2/service/bedrockruntime. Bedrock has a
// dedicated system field like Claude, so system messages are extracted the
// same way.
package bedrock

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/radiantcore/corerun/internal/gateway"
)

// temperatureRange is Bedrock's common valid sampling range across its
// hosted model families.
var temperatureRange = gateway.ClampRange{Min: 0, Max: 1}

// ConverseClient captures the subset of the Bedrock runtime SDK this
// adapter calls.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// WarnLogger receives a clamp or classification warning.
type WarnLogger func(msg string, keysAndValues ...any)

// Client adapts Bedrock Converse to gateway.Model.
type Client struct {
	runtime      ConverseClient
	defaultModel string
	warn         WarnLogger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithWarnLogger attaches a clamp/classification warning sink.
func WithWarnLogger(w WarnLogger) Option { return func(c *Client) { c.warn = w } }

// New builds a Client from an already-constructed ConverseClient, so the
// caller owns AWS credential/config resolution (aws.Config loading via
// config.LoadDefaultConfig is the caller's responsibility, matching how
// the rest of this gateway keeps provider auth out of the adapter).
func New(runtime ConverseClient, defaultModel string, opts ...Option) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	c := &Client{runtime: runtime, defaultModel: defaultModel, warn: func(string, ...any) {}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
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

	msgs := make([]types.Message, 0, len(rest))
	for _, m := range rest {
		role := types.ConversationRoleUser
		if m.Role == gateway.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		msgs = append(msgs, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	temperature, clamped := gateway.ClampTemperature(req.Params.Temperature, temperatureRange)
	if clamped {
		c.warn("bedrock: temperature clamped to provider range", "requested", req.Params.Temperature, "clamped", temperature)
	}

	inferenceConfig := &types.InferenceConfiguration{}
	if temperature != 0 {
		t32 := float32(temperature)
		inferenceConfig.Temperature = &t32
	}
	if req.Params.TopP != 0 {
		p32 := float32(req.Params.TopP)
		inferenceConfig.TopP = &p32
	}
	if req.Params.MaxTokens > 0 {
		mt := int32(req.Params.MaxTokens)
		inferenceConfig.MaxTokens = &mt
	}
	if len(req.Params.StopSequences) > 0 {
		inferenceConfig.StopSequences = req.Params.StopSequences
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        msgs,
		InferenceConfig: inferenceConfig,
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return gateway.Response{}, classifyError(err)
	}

	var text strings.Builder
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(tb.Value)
			}
		}
	}

	usage := gateway.Usage{}
	if out.Usage != nil {
		usage = gateway.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	return gateway.Response{
		Text:       text.String(),
		Usage:      usage,
		StopReason: string(out.StopReason),
	}, nil
}

func classifyError(err error) error {
	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) {
		return &gateway.ProviderError{
			Provider:  "bedrock",
			Operation: "converse",
			Kind:      gateway.ProviderErrorUnavailable,
			Retryable: true,
			Cause:     err,
		}
	}
	status := respErr.HTTPStatusCode()
	kind := gateway.ClassifyHTTPStatus(status, "")
	var throttle *types.ThrottlingException
	if errors.As(err, &throttle) {
		kind = gateway.ProviderErrorRateLimited
	}
	var quota *types.ServiceQuotaExceededException
	if errors.As(err, &quota) {
		kind = gateway.ProviderErrorQuotaExceeded
	}
	return &gateway.ProviderError{
		Provider:  "bedrock",
		Operation: "converse",
		HTTP:      status,
		Kind:      kind,
		Message:   err.Error(),
		Retryable: kind == gateway.ProviderErrorRateLimited || kind == gateway.ProviderErrorUnavailable,
		Cause:     err,
	}
}
