// Package ratelimit implements the per-session fixed-window request limiter.
//
// Each key owns one bucket {windowStart, count}. A call increments the count
// and is allowed iff the count, after incrementing, does not exceed the limit.
// The count returns to zero once a full window has passed since windowStart.
// The limiter is intentionally coarse: it is neither sliding nor token based,
// so bursts at a window boundary may admit up to twice the limit across two
// adjacent windows.
//
// Every call returns a Result, whether or not it was allowed, so callers can
// both gate and report remaining quota.
//
// Buckets are process-wide and ephemeral; Sweep drops buckets whose window
// has ended and is run periodically by the scheduler.
package ratelimit
