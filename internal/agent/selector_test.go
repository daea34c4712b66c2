package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysAvailable(string, string) bool { return true }

func testAgentConfig() Config {
	return Config{
		ID:             "test-agent",
		Engine:         "mock",
		Model:          "mock-primary",
		CostTier:       CostTierLow,
		FallbackEngine: "mock",
		FallbackModel:  "mock-fallback",
	}
}

func TestSelectorNewHasNoBudgetLimit(t *testing.T) {
	s := NewSelector()
	assert.Nil(t, s.budgetLimit)
	assert.Nil(t, s.totalBudgetLimit)
	assert.Equal(t, 0.0, s.TotalCost())
}

func TestSelectorSelectsPrimaryByDefault(t *testing.T) {
	s := NewSelector()
	sel, err := s.Select(testAgentConfig(), alwaysAvailable, nil)
	require.NoError(t, err)
	assert.Equal(t, TierPrimary, sel.Tier)
	assert.Equal(t, "mock-primary", sel.Model)
}

func TestSelectorFallsBackWhenPrimaryUnavailable(t *testing.T) {
	s := NewSelector()
	unavailablePrimary := func(engine, model string) bool { return model != "mock-primary" }

	sel, err := s.Select(testAgentConfig(), unavailablePrimary, nil)
	require.NoError(t, err)
	assert.Equal(t, TierFallback, sel.Tier)
	assert.Equal(t, "mock-fallback", sel.Model)
}

func TestSelectorNoRecommendationWhenNeitherTierAvailable(t *testing.T) {
	s := NewSelector()
	_, err := s.Select(testAgentConfig(), func(string, string) bool { return false }, nil)
	assert.ErrorIs(t, err, ErrNoRecommendation)
}

func TestSelectorEmptyConfigIsNoRecommendation(t *testing.T) {
	s := NewSelector()
	_, err := s.Select(Config{}, alwaysAvailable, nil)
	assert.ErrorIs(t, err, ErrNoRecommendation)
}

func TestSelectorEstimatesCostWhenTokensGiven(t *testing.T) {
	s := NewSelector()
	sel, err := s.Select(testAgentConfig(), alwaysAvailable, &TokenEstimate{PromptTokens: 1000, CompletionTokens: 500})
	require.NoError(t, err)
	assert.Greater(t, sel.EstimatedCostUSD, 0.0)
}

func TestSelectorTracksCumulativeCost(t *testing.T) {
	s := NewSelector()
	estimate := &TokenEstimate{PromptTokens: 1000, CompletionTokens: 500}

	_, err := s.Select(testAgentConfig(), alwaysAvailable, estimate)
	require.NoError(t, err)
	cost1 := s.TotalCost()
	assert.Greater(t, cost1, 0.0)

	_, err = s.Select(testAgentConfig(), alwaysAvailable, estimate)
	require.NoError(t, err)
	cost2 := s.TotalCost()
	assert.Greater(t, cost2, cost1)

	s.ResetCostTracking()
	assert.Equal(t, 0.0, s.TotalCost())
}

func TestSelectorRejectsOverPerCallBudget(t *testing.T) {
	s := NewSelector(WithBudgetLimit(0.00001))
	_, err := s.Select(testAgentConfig(), alwaysAvailable, &TokenEstimate{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}

func TestSelectorBudgetOverrunDoesNotFallBack(t *testing.T) {
	// A budget overrun on the primary must not silently retry against the
	// fallback tier: the caller needs to know the estimate was rejected.
	s := NewSelector(WithBudgetLimit(0.00001))
	cfg := testAgentConfig()
	sel, err := s.Select(cfg, alwaysAvailable, &TokenEstimate{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.Empty(t, sel.Model)
}

func TestSelectorRejectsOverTotalBudget(t *testing.T) {
	s := NewSelector(WithTotalBudgetLimit(0.0001))
	estimate := &TokenEstimate{PromptTokens: 1000, CompletionTokens: 500}

	_, err := s.Select(testAgentConfig(), alwaysAvailable, estimate)
	require.NoError(t, err)

	_, err = s.Select(testAgentConfig(), alwaysAvailable, estimate)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}
