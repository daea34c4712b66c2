// Package gateway implements the Model Gateway (spec §4.11... see
// SPEC_FULL.md C11): a uniform text/chat-completion interface over multiple
// model providers, with consistent error classification and backoff.
package gateway

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies a provider failure into a small set of
// categories that drive retry and dispatcher-shutdown decisions.
type ProviderErrorKind string

const (
	// ProviderErrorAuth indicates authentication/authorization failure —
	// never retryable without operator intervention.
	ProviderErrorAuth ProviderErrorKind = "auth"
	// ProviderErrorInvalidRequest indicates the request itself is malformed;
	// retrying unchanged will not succeed.
	ProviderErrorInvalidRequest ProviderErrorKind = "invalid_request"
	// ProviderErrorRateLimited indicates the provider is throttling (HTTP 429).
	ProviderErrorRateLimited ProviderErrorKind = "rate_limited"
	// ProviderErrorQuotaExceeded indicates a permanent quota exhaustion,
	// distinct from a transient rate limit.
	ProviderErrorQuotaExceeded ProviderErrorKind = "quota_exceeded"
	// ProviderErrorUnavailable indicates a transient failure (5xx, network).
	ProviderErrorUnavailable ProviderErrorKind = "unavailable"
	// ProviderErrorUnknown is an unclassified provider failure.
	ProviderErrorUnknown ProviderErrorKind = "unknown"
)

// ProviderError describes a failure returned by a model provider. It crosses
// package boundaries so the Dispatcher can classify it without depending on
// any one provider SDK's error types.
type ProviderError struct {
	Provider  string
	Operation string
	HTTP      int
	Kind      ProviderErrorKind
	Code      string
	Message   string
	RequestID string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.HTTP > 0 {
		status = fmt.Sprintf("%d ", e.HTTP)
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.Provider, e.Kind, status, op, code+msg)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
