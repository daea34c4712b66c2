package agent

import (
	"errors"
	"sync"
)

// ErrNoRecommendation is returned when a Config carries no usable engine/
// model at all (neither primary nor fallback).
var ErrNoRecommendation = errors.New("agent: config has no model recommendation")

// ErrBudgetExceeded is returned when a selection's estimated cost would
// exceed the Selector's configured per-call or cumulative budget. Unlike an
// unavailable model, a budget overrun never falls back to a cheaper tier:
// the caller asked for a specific model and the answer is "no", not
// "something else instead".
var ErrBudgetExceeded = errors.New("agent: estimated cost exceeds budget")

// Tier identifies which of a Config's recommendations a Selection used.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// costPerMillionTokens mirrors the original implementation's tier pricing
// table, used only for the selector's own pre-flight cost estimate — the
// authoritative per-call cost still comes from gateway.RateTable.CostUSD
// once real usage is known.
var costPerMillionTokens = map[CostTier]float64{
	CostTierLow:     0.05,
	CostTierMedium:  0.50,
	CostTierHigh:    5.0,
	CostTierPremium: 50.0,
}

// TokenEstimate is a rough prompt/completion size used for a pre-flight
// budget check, before the real Usage a provider response carries exists.
type TokenEstimate struct {
	PromptTokens     int
	CompletionTokens int
}

// Selection is the outcome of Selector.Select.
type Selection struct {
	Engine           string
	Model            string
	Tier             Tier
	EstimatedCostUSD float64
}

// SelectorOption configures a Selector at construction time.
type SelectorOption func(*Selector)

// WithBudgetLimit caps the estimated cost of any single selection.
func WithBudgetLimit(limit float64) SelectorOption {
	return func(s *Selector) { s.budgetLimit = &limit }
}

// WithTotalBudgetLimit caps the cumulative estimated cost the Selector has
// approved across its lifetime.
func WithTotalBudgetLimit(limit float64) SelectorOption {
	return func(s *Selector) { s.totalBudgetLimit = &limit }
}

// Selector resolves an agent Config's primary/fallback model recommendation
// into a concrete (engine, model) pair, trying the primary first and
// falling back only when the primary is reported unavailable — never on a
// budget overrun, which is reported as ErrBudgetExceeded immediately
// (spec §12 "model selector": "per-task agent_id to (engine, model)
// resolution with fallback chains").
type Selector struct {
	mu               sync.Mutex
	budgetLimit      *float64
	totalBudgetLimit *float64
	totalCost        float64
}

// NewSelector constructs a Selector with no budget limits, the default.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select resolves cfg's recommendation. available reports whether a given
// (engine, model) pair can currently serve a request; pass a func that
// always returns true when only one gateway is configured and every agent
// routes through it. estimate may be nil to skip the budget check entirely.
func (s *Selector) Select(cfg Config, available func(engine, model string) bool, estimate *TokenEstimate) (Selection, error) {
	if cfg.Engine == "" && cfg.FallbackEngine == "" {
		return Selection{}, ErrNoRecommendation
	}

	if cfg.Engine != "" {
		sel, err := s.trySelect(cfg.Engine, cfg.Model, cfg.CostTier, TierPrimary, available, estimate)
		if err == nil {
			return sel, nil
		}
		if errors.Is(err, ErrBudgetExceeded) {
			return Selection{}, err
		}
	}

	if cfg.FallbackEngine != "" {
		return s.trySelect(cfg.FallbackEngine, cfg.FallbackModel, cfg.CostTier, TierFallback, available, estimate)
	}

	return Selection{}, ErrNoRecommendation
}

func (s *Selector) trySelect(engine, model string, tier CostTier, which Tier, available func(engine, model string) bool, estimate *TokenEstimate) (Selection, error) {
	if available != nil && !available(engine, model) {
		return Selection{}, ErrNoRecommendation
	}

	cost := estimateCost(tier, estimate)
	if err := s.checkBudget(cost); err != nil {
		return Selection{}, err
	}

	s.mu.Lock()
	s.totalCost += cost
	s.mu.Unlock()

	return Selection{Engine: engine, Model: model, Tier: which, EstimatedCostUSD: cost}, nil
}

func estimateCost(tier CostTier, estimate *TokenEstimate) float64 {
	if estimate == nil {
		return 0
	}
	perMillion, ok := costPerMillionTokens[tier]
	if !ok {
		perMillion = costPerMillionTokens[CostTierMedium]
	}
	totalTokens := estimate.PromptTokens + estimate.CompletionTokens
	return (float64(totalTokens) / 1_000_000.0) * perMillion
}

func (s *Selector) checkBudget(cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.budgetLimit != nil && cost > *s.budgetLimit {
		return ErrBudgetExceeded
	}
	if s.totalBudgetLimit != nil && s.totalCost+cost > *s.totalBudgetLimit {
		return ErrBudgetExceeded
	}
	return nil
}

// TotalCost returns the cumulative estimated cost of every approved
// selection since construction or the last ResetCostTracking.
func (s *Selector) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCost
}

// ResetCostTracking zeroes the cumulative cost counter.
func (s *Selector) ResetCostTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCost = 0
}
