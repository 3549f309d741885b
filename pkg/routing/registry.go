package routing

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"mercator-hq/relay/pkg/providers"
)

// Config configures a Registry.
type Config struct {
	Breaker BreakerConfig
	Health  HealthConfig

	// OnStateChange is invoked on every breaker transition, after logging.
	OnStateChange StateChangeFunc
}

// Registration pairs an adapter with its priority. Lower priority values are
// tried first; equal priorities keep registration order.
type Registration struct {
	Provider providers.Provider
	Priority int
}

// Entry is one provider slot in the registry.
type Entry struct {
	Provider providers.Provider
	Priority int
	Breaker  *CircuitBreaker
	Stats    *ProviderStats
}

// Name returns the provider name.
func (e *Entry) Name() string {
	return e.Provider.GetName()
}

// ProviderRecord is the observable state of one provider.
type ProviderRecord struct {
	Name                string        `json:"name"`
	Kind                string        `json:"kind"`
	Priority            int           `json:"priority"`
	CircuitState        string        `json:"circuit_state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
	LastHealthCheckAt   *time.Time    `json:"last_health_check_at,omitempty"`
	LastHealthOK        bool          `json:"last_health_ok"`
	Maintenance         bool          `json:"maintenance"`
	Stats               StatsSnapshot `json:"stats"`
}

// Registry is the fixed, priority-ordered provider table.
type Registry struct {
	entries []*Entry
	byName  map[string]*Entry
	health  *HealthCache
	logger  *slog.Logger
}

// NewRegistry builds the table. It fails on an empty list or duplicate names.
func NewRegistry(cfg Config, regs []Registration) (*Registry, error) {
	if len(regs) == 0 {
		return nil, ErrNoProvidersConfigured
	}

	r := &Registry{
		entries: make([]*Entry, 0, len(regs)),
		byName:  make(map[string]*Entry, len(regs)),
		health:  NewHealthCache(cfg.Health),
		logger:  slog.Default().With("component", "routing"),
	}

	onChange := func(name string, from, to State) {
		if to == StateOpen {
			r.logger.Warn("circuit breaker opened", "provider", name, "from", from.String())
		} else {
			r.logger.Info("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		}
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	for _, reg := range regs {
		name := reg.Provider.GetName()
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, name)
		}
		e := &Entry{
			Provider: reg.Provider,
			Priority: reg.Priority,
			Breaker:  NewCircuitBreaker(name, cfg.Breaker, onChange),
			Stats:    &ProviderStats{},
		}
		r.entries = append(r.entries, e)
		r.byName[name] = e
	}

	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority < r.entries[j].Priority
	})

	return r, nil
}

// Entries returns the providers in priority order. The slice must not be modified.
func (r *Registry) Entries() []*Entry {
	return r.entries
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, &ProviderNotFoundError{ProviderName: name, AvailableProviders: r.Names()}
	}
	return e, nil
}

// Names returns provider names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name()
	}
	return names
}

// Health returns the shared health cache.
func (r *Registry) Health() *HealthCache {
	return r.health
}

// Snapshot returns the observable state of every provider in priority order.
func (r *Registry) Snapshot() []ProviderRecord {
	out := make([]ProviderRecord, 0, len(r.entries))
	for _, e := range r.entries {
		b := e.Breaker.Snapshot()
		rec := ProviderRecord{
			Name:                e.Name(),
			Kind:                string(e.Provider.GetKind()),
			Priority:            e.Priority,
			CircuitState:        b.State.String(),
			ConsecutiveFailures: b.ConsecutiveFailures,
			Stats:               e.Stats.Snapshot(),
		}
		if !b.OpenedAt.IsZero() {
			opened := b.OpenedAt
			rec.OpenedAt = &opened
		}
		st, ok := r.health.Status(e.Name())
		rec.Maintenance = st.Maintenance
		if ok {
			checked := st.CheckedAt
			rec.LastHealthCheckAt = &checked
			rec.LastHealthOK = st.OK
		}
		out = append(out, rec)
	}
	return out
}

// Ready reports whether at least one provider is closed, not under
// maintenance, and not known to be unhealthy.
func (r *Registry) Ready() bool {
	for _, e := range r.entries {
		if e.Breaker.State() != StateClosed {
			continue
		}
		st, ok := r.health.Status(e.Name())
		if st.Maintenance || (ok && !st.OK) {
			continue
		}
		return true
	}
	return false
}

// Close closes every provider.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.entries {
		if err := e.Provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
