package chat

import (
	"strings"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// FailureKind buckets a failed exchange by its cause.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureRateLimited FailureKind = "rate_limited"
	FailureQuota       FailureKind = "quota_exceeded"
	FailureGeneric     FailureKind = "generic"
)

// classify inspects the error and buckets it. The structured code wins
// when present; otherwise the description is matched the way the
// surrounding tooling has always matched backend error strings.
func classify(err error) FailureKind {
	switch schema.CodeOf(err) {
	case schema.ErrCodeTimeout:
		return FailureTimeout
	case schema.ErrCodeRateLimit:
		return FailureRateLimited
	case schema.ErrCodeQuota:
		return FailureQuota
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(msg, "rate limit"):
		return FailureRateLimited
	case strings.Contains(msg, "quota"):
		return FailureQuota
	default:
		return FailureGeneric
	}
}

// explanation returns the transcript-facing system message for a failure.
func explanation(kind FailureKind) string {
	switch kind {
	case FailureTimeout:
		return "The request is taking longer than expected. Please try again with a shorter question."
	case FailureRateLimited:
		return "Rate limit exceeded. Please wait a moment and try again."
	case FailureQuota:
		return "API quota exceeded. Please check the API configuration."
	default:
		return "Sorry, I encountered an error processing your request."
	}
}
