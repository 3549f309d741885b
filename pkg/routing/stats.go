package routing

import "sync/atomic"

// ProviderStats holds lock-free per-provider counters.
type ProviderStats struct {
	attempts         atomic.Int64
	successes        atomic.Int64
	failures         atomic.Int64
	skippedOpen      atomic.Int64
	skippedUnhealthy atomic.Int64
	totalLatencyMs   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of ProviderStats.
type StatsSnapshot struct {
	Attempts         int64 `json:"attempts"`
	Successes        int64 `json:"successes"`
	Failures         int64 `json:"failures"`
	SkippedOpen      int64 `json:"skipped_open"`
	SkippedUnhealthy int64 `json:"skipped_unhealthy"`
	AvgLatencyMs     int64 `json:"avg_latency_ms"`
}

// RecordAttempt counts one provider invocation.
func (s *ProviderStats) RecordAttempt() { s.attempts.Add(1) }

// RecordSuccess counts a successful invocation and its latency.
func (s *ProviderStats) RecordSuccess(latencyMs int64) {
	s.successes.Add(1)
	s.totalLatencyMs.Add(latencyMs)
}

// RecordFailure counts a failed invocation.
func (s *ProviderStats) RecordFailure() { s.failures.Add(1) }

// RecordSkippedOpen counts a selection skipped because the breaker refused it.
func (s *ProviderStats) RecordSkippedOpen() { s.skippedOpen.Add(1) }

// RecordSkippedUnhealthy counts a selection skipped because of bad health.
func (s *ProviderStats) RecordSkippedUnhealthy() { s.skippedUnhealthy.Add(1) }

// Snapshot returns the current counters.
func (s *ProviderStats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Attempts:         s.attempts.Load(),
		Successes:        s.successes.Load(),
		Failures:         s.failures.Load(),
		SkippedOpen:      s.skippedOpen.Load(),
		SkippedUnhealthy: s.skippedUnhealthy.Load(),
	}
	if snap.Successes > 0 {
		snap.AvgLatencyMs = s.totalLatencyMs.Load() / snap.Successes
	}
	return snap
}
