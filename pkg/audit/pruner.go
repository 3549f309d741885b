package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes records past their retention period.
type Pruner struct {
	storage       Storage
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewPruner creates a pruner. A retentionDays of zero or less keeps records forever.
func NewPruner(storage Storage, retentionDays int) *Pruner {
	return &Pruner{
		storage:       storage,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        slog.Default().With("component", "audit.retention"),
	}
}

// SetClock overrides the time source. Used by tests.
func (p *Pruner) SetClock(now func() time.Time) {
	p.now = now
}

// Cutoff returns the oldest timestamp that is kept, and false when
// records are kept forever.
func (p *Pruner) Cutoff() (time.Time, bool) {
	if p.retentionDays <= 0 {
		return time.Time{}, false
	}
	return p.now().Add(-time.Duration(p.retentionDays) * 24 * time.Hour), true
}

// Prune deletes expired records and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff, ok := p.Cutoff()
	if !ok {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	deleted, err := p.storage.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("audit records pruned",
			"deleted_count", deleted,
			"retention_days", p.retentionDays,
			"cutoff", cutoff,
		)
	} else {
		p.logger.Debug("no audit records pruned",
			"retention_days", p.retentionDays,
		)
	}
	return deleted, nil
}
