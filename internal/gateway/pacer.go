package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer wraps a Model with client-side token-bucket pacing ahead of
// provider rate limits (SPEC_FULL.md domain stack: golang.org/x/time/rate,
// "composed with the exponential-backoff retry policy of spec §7").
// Pacing and backoff are deliberately separate concerns: the Pacer smooths
// outgoing call rate; WithRetry recovers from a 429 that gets through
// anyway.
type Pacer struct {
	inner   Model
	limiter *rate.Limiter
}

// NewPacer wraps inner with a limiter allowing callsPerSecond sustained
// calls and a burst of int(callsPerSecond)+1, so at least one call is
// admitted at once even for a rate below one per second.
func NewPacer(inner Model, callsPerSecond float64) *Pacer {
	return &Pacer{inner: inner, limiter: rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1)}
}

// GenerateText implements Model.
func (p *Pacer) GenerateText(ctx context.Context, prompt string, params SamplingParams) (Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	return p.inner.GenerateText(ctx, prompt, params)
}

// GenerateChatCompletion implements Model.
func (p *Pacer) GenerateChatCompletion(ctx context.Context, req Request) (Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	return p.inner.GenerateChatCompletion(ctx, req)
}
