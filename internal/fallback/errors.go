package fallback

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCostLimitExceeded is returned when the daily budget is exhausted and no
// cache entry satisfies the request. Generation is refused outright.
var ErrCostLimitExceeded = errors.New("daily AI cost limit exceeded")

// ProviderFailure records why one provider in the walk failed. Kind
// distinguishes a failed availability probe from a failed generation call so
// callers can tell a misconfigured key from a transient timeout.
type ProviderFailure struct {
	Provider string
	Kind     string // "unavailable", "timeout", "error"
	Err      error
}

func (f ProviderFailure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Provider, f.Kind, f.Err)
}

func (f ProviderFailure) Error() string { return f.String() }

func (f ProviderFailure) Unwrap() error { return f.Err }

// AllProvidersFailedError aggregates every provider's failure reason for a
// single generation call. It is fatal for that call; the queue processor
// applies task-level retry, not immediate re-fallback.
type AllProvidersFailedError struct {
	Failures []ProviderFailure
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "all providers failed: no providers registered"
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

const (
	failureUnavailable = "unavailable"
	failureTimeout     = "timeout"
	failureError       = "error"
)
