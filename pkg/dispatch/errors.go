package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/providers"
)

var (
	// ErrRateLimited is matched by RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAllProvidersExhausted is matched by ExhaustedError.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrInvalidInput is matched by ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCanceled is returned when the caller's context ends before a reply.
	ErrCanceled = errors.New("dispatch canceled")
)

// RateLimitError is returned when the session is over its quota. It carries
// the quota so callers can tell the user when to retry.
type RateLimitError struct {
	SessionID string
	Limit     int
	Remaining int
	ResetAt   time.Time

	// RetryAfter is the time left in the window when the call was rejected.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for session %q: %d/%d remaining, resets at %s",
		e.SessionID, e.Remaining, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ValidationError represents invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ExhaustedError is returned when no provider produced a reply.
type ExhaustedError struct {
	// SessionID is the session the placeholder reply was stored in. Callers
	// that passed no session learn the generated ID from here.
	SessionID string

	// Attempts lists every provider considered, in order.
	Attempts []Attempt
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers exhausted: no providers configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		if a.Error != "" {
			parts[i] = fmt.Sprintf("%s: %s (%s)", a.Provider, a.Outcome, a.Error)
		} else {
			parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Outcome)
		}
	}
	return "all providers exhausted: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrAllProvidersExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// Category groups errors by who must act on them.
type Category string

const (
	// CategoryCaller covers rate limiting, unknown or ended sessions and
	// invalid input. Never retried.
	CategoryCaller Category = "caller"

	// CategoryProviderTransient covers a single provider failure. The
	// dispatcher absorbs these by moving to the next provider.
	CategoryProviderTransient Category = "provider_transient"

	// CategoryExhaustion means every provider failed or was skipped.
	CategoryExhaustion Category = "exhaustion"

	// CategoryPersistence means the conversation store failed.
	CategoryPersistence Category = "persistence"

	// CategoryCanceled means the caller gave up.
	CategoryCanceled Category = "canceled"

	// CategoryInternal is everything else.
	CategoryInternal Category = "internal"
)

// Classify maps an error returned by ProcessMessage (or a provider) to its
// category. Classify(nil) returns "".
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, conversation.ErrSessionNotFound),
		errors.Is(err, conversation.ErrSessionEnded),
		errors.Is(err, conversation.ErrSessionExists):
		return CategoryCaller
	case errors.Is(err, conversation.ErrStorage):
		return CategoryPersistence
	case errors.Is(err, ErrAllProvidersExhausted):
		return CategoryExhaustion
	case errors.Is(err, providers.ErrProviderFailure),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryProviderTransient
	default:
		return CategoryInternal
	}
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}
