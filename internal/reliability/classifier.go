package reliability

import (
	"time"

	"github.com/ent0n29/soundboard/internal/speech"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableCode reports whether a caller may retry the same request later
// without changing its content.
func IsRetryableCode(code speech.ErrorCode) bool {
	switch code {
	case speech.CodeBusy, speech.CodeRateLimited, speech.CodeTimeout, speech.CodeBackendUnavailable:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
