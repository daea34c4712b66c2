package gateway

// quotaErrorTypes are provider-specific error type strings that indicate
// permanent quota exhaustion rather than a transient rate limit (spec
// §4.11: "classification uses both HTTP status (402, 429) and
// provider-specific error type strings").
var quotaErrorTypes = map[string]bool{
	"rate_limit_error":   true, // Anthropic
	"overloaded_error":   true, // Anthropic capacity exhaustion
	"insufficient_quota": true, // OpenAI
	"RESOURCE_EXHAUSTED": true, // Bedrock/Gemini-style
}

// ClassifyQuota decides whether a provider failure represents quota
// exhaustion (spec §4.11: "quota errors are mapped to a single
// QuotaExceeded{provider, message?} variant"). httpStatus 402 counts on
// its own; any other status counts when errType is a recognized provider
// error-type string. A bare 429 with an unrecognized type string is not
// quota exhaustion; ClassifyHTTPStatus maps it to ProviderErrorRateLimited.
func ClassifyQuota(httpStatus int, errType string) bool {
	if httpStatus == 402 {
		return true
	}
	if quotaErrorTypes[errType] {
		return true
	}
	return false
}

// ClassifyHTTPStatus maps an HTTP status and provider error-type string to
// a ProviderErrorKind, applying ClassifyQuota first.
func ClassifyHTTPStatus(httpStatus int, errType string) ProviderErrorKind {
	switch {
	case ClassifyQuota(httpStatus, errType):
		return ProviderErrorQuotaExceeded
	case httpStatus == 401 || httpStatus == 403:
		return ProviderErrorAuth
	case httpStatus == 429:
		return ProviderErrorRateLimited
	case httpStatus == 400 || httpStatus == 422:
		return ProviderErrorInvalidRequest
	case httpStatus >= 500:
		return ProviderErrorUnavailable
	default:
		return ProviderErrorUnknown
	}
}
