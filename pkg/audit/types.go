package audit

import (
	"context"
	"time"
)

// Outcome is the terminal state of one dispatch call.
type Outcome string

const (
	// OutcomeSuccess means a provider produced a reply.
	OutcomeSuccess Outcome = "success"

	// OutcomeExhausted means every provider was skipped or failed.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeRateLimited means the session exceeded its quota.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeRejected means the input or session was invalid.
	OutcomeRejected Outcome = "rejected"

	// OutcomeCanceled means the caller gave up before a reply.
	OutcomeCanceled Outcome = "canceled"

	// OutcomeError means persistence or an internal step failed.
	OutcomeError Outcome = "error"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeExhausted, OutcomeRateLimited,
		OutcomeRejected, OutcomeCanceled, OutcomeError:
		return true
	}
	return false
}

// Record describes one dispatch call.
type Record struct {
	// ID uniquely identifies the record (UUID).
	ID string `json:"id"`

	// Timestamp is when the dispatch call started.
	Timestamp time.Time `json:"timestamp"`

	SessionID string `json:"session_id"`

	// ProvidersTried lists providers actually invoked, in order.
	ProvidersTried []string `json:"providers_tried,omitempty"`

	// ProviderUsed is the provider that answered, empty unless Outcome is success.
	ProviderUsed string `json:"provider_used,omitempty"`

	Outcome    Outcome `json:"outcome"`
	LatencyMs  int64   `json:"latency_ms"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`

	// Error is the error text for non-success outcomes.
	Error string `json:"error,omitempty"`
}

// Filter selects records. Zero fields do not filter.
type Filter struct {
	SessionID string
	Outcome   Outcome

	// Since and Until bound Timestamp (inclusive, exclusive).
	Since time.Time
	Until time.Time

	// Limit caps the number of returned records. 0 means no limit.
	Limit int
}

// matches reports whether r passes the filter.
func (f Filter) matches(r *Record) bool {
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Storage persists dispatch records.
//
// Query returns records newest first.
type Storage interface {
	Store(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
