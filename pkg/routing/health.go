package routing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mercator-hq/relay/pkg/providers"
)

// Default health cache settings.
const (
	DefaultHealthTTL    = 60 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// HealthConfig configures the HealthCache.
type HealthConfig struct {
	// TTL is how long a health reading is reused without a new probe.
	TTL time.Duration

	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration
}

// ApplyDefaults fills zero-valued fields.
func (c *HealthConfig) ApplyDefaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultHealthTTL
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
}

// Health status sources.
const (
	SourceProbe    = "probe"
	SourceCall     = "call"
	SourceExternal = "external"
)

// HealthStatus is one cached health reading.
type HealthStatus struct {
	OK        bool
	CheckedAt time.Time
	Source    string
	Error     string

	// Maintenance is set while an operator holds the provider down.
	Maintenance bool
}

// HealthCache maps provider name to its last health reading. Readings younger
// than TTL are reused; stale readings trigger one liveness probe shared by all
// concurrent readers of that provider.
type HealthCache struct {
	cfg    HealthConfig
	now    func() time.Time
	group  singleflight.Group
	logger *slog.Logger

	mu          sync.RWMutex
	entries     map[string]HealthStatus
	maintenance map[string]bool
}

// NewHealthCache creates an empty cache.
func NewHealthCache(cfg HealthConfig) *HealthCache {
	cfg.ApplyDefaults()
	return &HealthCache{
		cfg:         cfg,
		now:         time.Now,
		logger:      slog.Default().With("component", "routing.health"),
		entries:     make(map[string]HealthStatus),
		maintenance: make(map[string]bool),
	}
}

// SetClock replaces the time source. Intended for tests.
func (h *HealthCache) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

// Healthy reports whether p may be called. A fresh reading is returned as is;
// otherwise p is probed with the configured timeout and the result cached.
// A provider under maintenance is never probed and always unhealthy.
//
// If ctx ends while waiting on a probe, Healthy returns false and the shared
// probe keeps running for other waiters.
func (h *HealthCache) Healthy(ctx context.Context, p providers.Provider) bool {
	name := p.GetName()

	h.mu.RLock()
	down := h.maintenance[name]
	entry, ok := h.entries[name]
	fresh := ok && h.now().Sub(entry.CheckedAt) < h.cfg.TTL
	h.mu.RUnlock()

	if down {
		return false
	}
	if fresh {
		return entry.OK
	}

	ch := h.group.DoChan(name, func() (any, error) {
		return h.probe(ctx, p), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (h *HealthCache) probe(ctx context.Context, p providers.Provider) bool {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.ProbeTimeout)
	defer cancel()

	err := p.HealthCheck(probeCtx)
	h.store(p.GetName(), err == nil, SourceProbe, err)

	if err != nil {
		h.logger.Warn("health probe failed", "provider", p.GetName(), "error", err)
		return false
	}
	return true
}

// RecordCall folds a real call outcome into the cache. A success refreshes
// the reading as healthy. A failure drops the reading so the next selection
// probes again.
func (h *HealthCache) RecordCall(name string, err error) {
	if err == nil {
		h.store(name, true, SourceCall, nil)
		return
	}
	h.Invalidate(name)
}

// Set stores a reading reported by an external monitor. It is served like a
// probe result until the TTL expires.
func (h *HealthCache) Set(name string, ok bool, reason string) {
	var err error
	if !ok && reason != "" {
		err = errors.New(reason)
	}
	h.store(name, ok, SourceExternal, err)
}

// Invalidate drops the cached reading for name.
func (h *HealthCache) Invalidate(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, name)
}

// SetMaintenance holds a provider down (or releases it) independent of its
// breaker and of probe results.
func (h *HealthCache) SetMaintenance(name string, down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if down {
		h.maintenance[name] = true
	} else {
		delete(h.maintenance, name)
	}
}

// Status returns the cached reading for name. ok is false when nothing is cached.
func (h *HealthCache) Status(name string) (HealthStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.entries[name]
	st.Maintenance = h.maintenance[name]
	return st, ok
}

func (h *HealthCache) store(name string, ok bool, source string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := HealthStatus{OK: ok, CheckedAt: h.now(), Source: source}
	if err != nil {
		st.Error = err.Error()
	}
	h.entries[name] = st
}
