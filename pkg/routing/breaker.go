package routing

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota

	// StateOpen refuses calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a single trial call. Only reachable when
	// BreakerConfig.HalfOpen is set.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Default breaker settings.
const (
	DefaultFailureThreshold = 3
	DefaultFailureWindow    = 60 * time.Second
	DefaultCooldown         = 30 * time.Second
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures, all inside
	// FailureWindow, that opens the breaker.
	FailureThreshold int

	// FailureWindow bounds how far apart the counted failures may be. A
	// failure arriving after the window restarts the count.
	FailureWindow time.Duration

	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration

	// HalfOpen admits exactly one trial call after the cooldown instead of
	// closing optimistically.
	HalfOpen bool
}

// ApplyDefaults fills zero-valued fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
}

// StateChangeFunc observes breaker transitions. It is called without the
// breaker lock held.
type StateChangeFunc func(provider string, from, to State)

// BreakerSnapshot is a consistent view of one breaker.
type BreakerSnapshot struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitBreaker is a per-provider failure isolation state machine.
//
// CLOSED opens once FailureThreshold consecutive failures land within
// FailureWindow. An OPEN breaker refuses calls until Cooldown has elapsed;
// the next Allow then closes it with counters reset, so the next real call
// tests recovery and a failure before any success reopens it at once. With
// HalfOpen set, that call is admitted alone and decides
// between CLOSED and OPEN.
type CircuitBreaker struct {
	name          string
	cfg           BreakerConfig
	now           func() time.Time
	onStateChange StateChangeFunc

	mu             sync.Mutex
	state          State
	failures       int
	firstFailureAt time.Time
	openedAt       time.Time
	trialInFlight  bool
	recovering     bool
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, onStateChange StateChangeFunc) *CircuitBreaker {
	cfg.ApplyDefaults()
	return &CircuitBreaker{
		name:          name,
		cfg:           cfg,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

// SetClock replaces the time source. Intended for tests.
func (b *CircuitBreaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether a call may proceed. It is also the poll that moves an
// OPEN breaker out of OPEN once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	allowed, change := b.allowLocked()
	b.mu.Unlock()

	b.notify(change)
	return allowed
}

func (b *CircuitBreaker) allowLocked() (bool, *transition) {
	switch b.state {
	case StateClosed:
		return true, nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, nil
		}
		if b.cfg.HalfOpen {
			b.trialInFlight = true
			return true, b.setState(StateHalfOpen)
		}
		b.reset()
		b.recovering = true
		return true, b.setState(StateClosed)

	case StateHalfOpen:
		if b.trialInFlight {
			return false, nil
		}
		b.trialInFlight = true
		return true, nil
	}
	return false, nil
}

// RecordSuccess resets all counters and closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	b.reset()
	change := b.setState(StateClosed)
	b.mu.Unlock()

	b.notify(change)
}

// RecordFailure counts a provider failure and opens the breaker when the
// threshold is reached inside the failure window. A failed half-open trial
// reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()
	var change *transition

	switch b.state {
	case StateHalfOpen:
		b.failures++
		change = b.trip(now)

	case StateClosed:
		if b.recovering {
			b.failures++
			change = b.trip(now)
			break
		}
		if b.failures == 0 || now.Sub(b.firstFailureAt) > b.cfg.FailureWindow {
			b.failures = 0
			b.firstFailureAt = now
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			change = b.trip(now)
		}

	case StateOpen:
		// Late result of a call admitted before the breaker opened.
	}
	b.mu.Unlock()

	b.notify(change)
}

// RecordCanceled releases a half-open trial slot without counting the call
// either way. Used when the caller abandoned the call.
func (b *CircuitBreaker) RecordCanceled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// Reset forces the breaker closed with counters cleared.
func (b *CircuitBreaker) Reset() {
	b.RecordSuccess()
}

// State returns the current state without polling the cooldown.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a consistent view of the breaker.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}

func (b *CircuitBreaker) trip(now time.Time) *transition {
	b.openedAt = now
	b.trialInFlight = false
	b.recovering = false
	return b.setState(StateOpen)
}

func (b *CircuitBreaker) reset() {
	b.failures = 0
	b.firstFailureAt = time.Time{}
	b.openedAt = time.Time{}
	b.trialInFlight = false
	b.recovering = false
}

func (b *CircuitBreaker) setState(to State) *transition {
	if b.state == to {
		return nil
	}
	t := &transition{from: b.state, to: to}
	b.state = to
	return t
}

func (b *CircuitBreaker) notify(t *transition) {
	if t == nil || b.onStateChange == nil {
		return
	}
	b.onStateChange(b.name, t.from, t.to)
}
