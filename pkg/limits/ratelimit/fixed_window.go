package ratelimit

import (
	"sync"
	"time"
)

// Default limiter settings.
const (
	DefaultLimit  = 20
	DefaultWindow = time.Minute
)

// Config configures a FixedWindow limiter.
type Config struct {
	// Limit is the number of calls admitted per key per window.
	Limit int

	// Window is the fixed window length.
	Window time.Duration
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
}

// Result is the outcome of one Allow call.
type Result struct {
	// Allowed reports whether the call was admitted.
	Allowed bool

	// Limit is the limit in force for the window.
	Limit int

	// Remaining is the number of calls still admitted in this window.
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// RetryAfter returns how long until the window resets, relative to now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// bucket is one key's window state.
type bucket struct {
	windowStart time.Time
	count       int
	limit       int
	window      time.Duration
}

// FixedWindow is a keyed fixed-window counter. It is safe for concurrent use;
// increment-and-check is atomic under a single mutex.
type FixedWindow struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
	now     func() time.Time
}

// NewFixedWindow creates a limiter.
func NewFixedWindow(cfg Config) *FixedWindow {
	cfg.ApplyDefaults()
	return &FixedWindow{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (l *FixedWindow) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow counts one call for key and reports whether it is admitted.
func (l *FixedWindow) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketLocked(key, now)
	b.count++

	remaining := b.limit - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   b.count <= b.limit,
		Limit:     b.limit,
		Remaining: remaining,
		ResetAt:   b.windowStart.Add(b.window),
	}
}

// Peek reports the quota for key without counting a call.
func (l *FixedWindow) Peek(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= b.window {
		return Result{
			Allowed:   true,
			Limit:     l.cfg.Limit,
			Remaining: l.cfg.Limit,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}
	remaining := b.limit - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   remaining > 0,
		Limit:     b.limit,
		Remaining: remaining,
		ResetAt:   b.windowStart.Add(b.window),
	}
}

// bucketLocked returns key's bucket, starting a new window when the current
// one has ended. New windows pick up the current configuration.
func (l *FixedWindow) bucketLocked(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	if !ok || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.count = 0
		b.limit = l.cfg.Limit
		b.window = l.cfg.Window
	}
	return b
}

// Reset drops key's bucket.
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Update changes the limit and window. Buckets already inside a window keep
// their settings until that window ends.
func (l *FixedWindow) Update(cfg Config) {
	cfg.ApplyDefaults()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// Config returns the settings applied to new windows.
func (l *FixedWindow) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Sweep drops buckets whose window has ended and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= b.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// SessionKey returns the limiter key for a session.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}
