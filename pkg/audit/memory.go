package audit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps records in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*Record
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store saves a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return NewStorageError("memory", "store", err)
	}
	if err := ctx.Err(); err != nil {
		return NewStorageError("memory", "store", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(record))
	return nil
}

// Query returns matching records newest first.
func (s *MemoryStorage) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("memory", "query", err)
	}

	s.mu.RLock()
	results := make([]*Record, 0)
	for _, r := range s.records {
		if filter.matches(r) {
			results = append(results, cloneRecord(r))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(results, func(a, b *Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Count returns the number of matching records. Limit is ignored.
func (s *MemoryStorage) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewStorageError("memory", "count", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if filter.matches(r) {
			n++
		}
	}
	return n, nil
}

// DeleteOlderThan removes records with Timestamp before cutoff.
func (s *MemoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewStorageError("memory", "delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r *Record) bool {
		return r.Timestamp.Before(cutoff)
	})
	return int64(before - len(s.records)), nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.ProvidersTried = slices.Clone(r.ProvidersTried)
	return &c
}
