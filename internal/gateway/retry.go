package gateway

import (
	"context"
	"time"
)

// RetryConfig controls the local backoff policy applied at the model call
// site (spec §7): "local retries apply only to QuotaExceeded on HTTP 429
// ... with exponential backoff (base 1s, doubling, capped at 10s, max 5
// attempts). All other errors propagate up unchanged."
type RetryConfig struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig is spec §7's concrete policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Base:       1 * time.Second,
		Cap:        10 * time.Second,
		MaxRetries: 4, // retries after the first call: 5 attempts in all
		Sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithRetry wraps a Model call so that an HTTP-429 QuotaExceeded/RateLimited
// failure is retried with exponential backoff instead of propagating
// immediately. Every other error — including a 402 QuotaExceeded, which
// spec §4.9's critical-error classification treats as dispatcher-fatal —
// propagates unchanged on the first attempt.
func WithRetry(ctx context.Context, cfg RetryConfig, call func(ctx context.Context) (Response, error)) (Response, error) {
	delay := cfg.Base
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableAt429(err) {
			return Response{}, err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if serr := cfg.Sleep(ctx, delay); serr != nil {
			return Response{}, serr
		}
		delay *= 2
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
	}
	return Response{}, lastErr
}

// isRetryableAt429 reports whether err is a provider failure at HTTP 429,
// regardless of whether it classified as RateLimited or QuotaExceeded —
// spec §7 retries "QuotaExceeded on HTTP 429" specifically, not quota
// exhaustion signaled by other status codes (e.g. 402, which is permanent).
func isRetryableAt429(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	if pe.HTTP != 429 {
		return false
	}
	return pe.Kind == ProviderErrorRateLimited || pe.Kind == ProviderErrorQuotaExceeded
}
