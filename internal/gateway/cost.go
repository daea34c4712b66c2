package gateway

// Rate is a provider/model's per-token price in USD, expressed per million
// tokens (the unit providers publish their pricing in).
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// RateTable looks up Rate by provider and model. Unknown combinations
// return the zero Rate, which yields a $0 cost rather than an error —
// pricing gaps should not block telemetry recording.
type RateTable map[string]map[string]Rate

// DefaultRateTable seeds rates for the model families this gateway ships
// adapters for. Operators extend it via configuration; it is not meant to
// track every model a provider ever ships.
func DefaultRateTable() RateTable {
	return RateTable{
		"anthropic": {
			"claude-opus-4":   {InputPerMillion: 15, OutputPerMillion: 75},
			"claude-sonnet-4": {InputPerMillion: 3, OutputPerMillion: 15},
		},
		"openai": {
			"gpt-4o":      {InputPerMillion: 2.5, OutputPerMillion: 10},
			"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.6},
		},
		"bedrock": {
			"anthropic.claude-3-5-sonnet": {InputPerMillion: 3, OutputPerMillion: 15},
		},
	}
}

// CostUSD multiplies Usage by the configured Rate to derive cost_usd
// (spec §4.11: "callers multiply by provider/model rates to derive a
// cost_usd").
func (t RateTable) CostUSD(provider, model string, usage Usage) float64 {
	models, ok := t[provider]
	if !ok {
		return 0
	}
	rate, ok := models[model]
	if !ok {
		return 0
	}
	inputCost := float64(usage.InputTokens) / 1_000_000 * rate.InputPerMillion
	outputCost := float64(usage.OutputTokens) / 1_000_000 * rate.OutputPerMillion
	return inputCost + outputCost
}
