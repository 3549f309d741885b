package dispatch

import (
	"context"
	"time"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/conversation"
)

// Options tune one ProcessMessage call. Zero values use provider defaults.
type Options struct {
	// Model overrides the provider's configured model.
	Model string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature is the sampling temperature in [0, 2].
	Temperature *float64

	// OwnerRef and Metadata are stored on a session created by this call.
	OwnerRef string
	Metadata map[string]string
}

// RateLimitInfo is the caller's quota after the call was admitted or rejected.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// AttemptOutcome describes what happened to one provider during a call.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptFailed           AttemptOutcome = "failed"
	AttemptCanceled         AttemptOutcome = "canceled"
	AttemptSkippedOpen      AttemptOutcome = "skipped_open"
	AttemptSkippedUnhealthy AttemptOutcome = "skipped_unhealthy"
)

// Invoked reports whether the provider was actually called.
func (o AttemptOutcome) Invoked() bool {
	return o == AttemptSuccess || o == AttemptFailed || o == AttemptCanceled
}

// Attempt records one provider's part in a call.
type Attempt struct {
	Provider  string         `json:"provider"`
	Outcome   AttemptOutcome `json:"outcome"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Result is a successful ProcessMessage outcome.
type Result struct {
	// SessionID is the session the exchange was stored in. It is generated
	// when the call was made with an empty session ID.
	SessionID string `json:"session_id"`

	// Message is the persisted ASSISTANT message.
	Message conversation.Message `json:"message"`

	// Provider is the name of the provider that answered.
	Provider string `json:"provider"`

	// LatencyMs is the answering provider's call latency.
	LatencyMs int64 `json:"latency_ms"`

	RateLimit RateLimitInfo `json:"rate_limit"`

	// Attempts lists every provider considered, in order.
	Attempts []Attempt `json:"attempts"`
}

// Metrics receives dispatch observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// ObserveDispatch records one finished call.
	ObserveDispatch(outcome audit.Outcome, duration time.Duration)

	// ObserveAttempt records one provider invocation or skip.
	ObserveAttempt(provider string, outcome AttemptOutcome, duration time.Duration)

	// ObserveUsage records tokens and estimated cost of a successful exchange.
	ObserveUsage(provider string, tokens int, cost float64)

	// IncRateLimited counts a call rejected by the rate limiter.
	IncRateLimited()
}

// AuditSink receives one record per call.
type AuditSink interface {
	Record(record *audit.Record) error
}

type nopMetrics struct{}

func (nopMetrics) ObserveDispatch(audit.Outcome, time.Duration) {}
func (nopMetrics) ObserveAttempt(string, AttemptOutcome, time.Duration) {}
func (nopMetrics) ObserveUsage(string, int, float64) {}
func (nopMetrics) IncRateLimited() {}

type nopSink struct{}

func (nopSink) Record(*audit.Record) error { return nil }

// MessageProcessor is the dispatcher contract consumed by the HTTP and CLI
// layers.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, sessionID, text string, opts Options) (*Result, error)
}
