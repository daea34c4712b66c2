package gateway

import "fmt"

// CriticalError marks a model error as non-retryable at the Dispatcher
// level (spec §4.6 step 6): the dispatcher must store it, signal shutdown,
// and exit its loop rather than continue to the next task.
type CriticalError struct {
	Provider string
	Kind     ProviderErrorKind
	Message  string
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical model error: %s/%s: %s", e.Provider, e.Kind, e.Message)
}

// CriticalFromModelError classifies a model-call error, returning a non-nil
// *CriticalError only for failure kinds the dispatcher can never recover
// from by retrying: non-retryable auth failures and permanent quota
// exhaustion. Rate limiting and transient unavailability are NOT critical —
// those are handled by the gateway's own backoff (spec §11) and simply
// logged by the dispatcher.
func CriticalFromModelError(err error) *CriticalError {
	pe, ok := AsProviderError(err)
	if !ok {
		return nil
	}
	switch pe.Kind {
	case ProviderErrorAuth:
		if !pe.Retryable {
			return &CriticalError{Provider: pe.Provider, Kind: pe.Kind, Message: pe.Message}
		}
	case ProviderErrorQuotaExceeded:
		return &CriticalError{Provider: pe.Provider, Kind: pe.Kind, Message: pe.Message}
	}
	return nil
}
