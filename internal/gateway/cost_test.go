package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostUSDKnownModel(t *testing.T) {
	table := DefaultRateTable()
	cost := table.CostUSD("openai", "gpt-4o-mini", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	assert.InDelta(t, 0.15+0.6, cost, 0.0001)
}

func TestCostUSDUnknownModelIsZero(t *testing.T) {
	table := DefaultRateTable()
	cost := table.CostUSD("openai", "nonexistent-model", Usage{InputTokens: 100, OutputTokens: 100})
	assert.Equal(t, 0.0, cost)
}

func TestCostUSDUnknownProviderIsZero(t *testing.T) {
	table := DefaultRateTable()
	cost := table.CostUSD("nonexistent-provider", "gpt-4o", Usage{InputTokens: 100, OutputTokens: 100})
	assert.Equal(t, 0.0, cost)
}
