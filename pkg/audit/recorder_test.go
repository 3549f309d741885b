package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingStorage holds every Store call until release is closed.
type blockingStorage struct {
	*MemoryStorage
	started chan struct{}
	release chan struct{}
}

func newBlockingStorage() *blockingStorage {
	return &blockingStorage{
		MemoryStorage: NewMemoryStorage(),
		started:       make(chan struct{}, 16),
		release:       make(chan struct{}),
	}
}

func (s *blockingStorage) Store(ctx context.Context, r *Record) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStorage.Store(context.Background(), r)
}

func TestRecorder_WritesRecords(t *testing.T) {
	store := NewMemoryStorage()
	rec := NewRecorder(store, RecorderConfig{BufferSize: 10, WriteTimeout: time.Second})

	for i := 0; i < 5; i++ {
		if err := rec.Record(&Record{SessionID: "s1", Outcome: OutcomeSuccess}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	n, err := store.Count(context.Background(), Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 5 {
		t.Errorf("stored %d records, want 5", n)
	}
	if rec.Written() != 5 {
		t.Errorf("Written() = %d, want 5", rec.Written())
	}

	records, _ := store.Query(context.Background(), Filter{})
	seen := make(map[string]bool)
	for _, r := range records {
		if r.ID == "" || r.Timestamp.IsZero() {
			t.Errorf("record missing ID or timestamp: %+v", r)
		}
		if seen[r.ID] {
			t.Errorf("duplicate record ID %s", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := newBlockingStorage()
	var drops atomic.Int32
	rec := NewRecorder(store, RecorderConfig{
		BufferSize:   1,
		WriteTimeout: 10 * time.Second,
		OnDrop:       func() { drops.Add(1) },
	})

	if err := rec.Record(&Record{Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("first Record() failed: %v", err)
	}
	select {
	case <-store.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first record")
	}

	if err := rec.Record(&Record{Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("second Record() failed: %v", err)
	}
	err := rec.Record(&Record{Outcome: OutcomeSuccess})
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("third Record() error = %v, want ErrBufferFull", err)
	}
	if rec.Dropped() != 1 || drops.Load() != 1 {
		t.Errorf("Dropped() = %d, OnDrop calls = %d, want 1 and 1", rec.Dropped(), drops.Load())
	}

	close(store.release)
	rec.Close()

	if rec.Written() != 2 {
		t.Errorf("Written() = %d, want 2", rec.Written())
	}
}

func TestRecorder_RejectsAfterClose(t *testing.T) {
	rec := NewRecorder(NewMemoryStorage(), RecorderConfig{})
	rec.Close()
	rec.Close()

	if err := rec.Record(&Record{Outcome: OutcomeSuccess}); !errors.Is(err, ErrRecorderClosed) {
		t.Errorf("Record() after Close error = %v, want ErrRecorderClosed", err)
	}
}

func TestRecorder_AcceptedRecordsSurviveConcurrentClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := NewMemoryStorage()
		rec := NewRecorder(store, RecorderConfig{BufferSize: 1024})

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if rec.Record(&Record{SessionID: "s1", Outcome: OutcomeSuccess}) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		rec.Close()
		wg.Wait()

		n, err := store.Count(context.Background(), Filter{SessionID: "s1"})
		if err != nil {
			t.Fatalf("Count() failed: %v", err)
		}
		if int64(n) != accepted.Load() {
			t.Fatalf("round %d: stored %d records, Record accepted %d", round, n, accepted.Load())
		}
	}
}

func TestRecorder_StorageFailureDoesNotStopWorker(t *testing.T) {
	store := NewMemoryStorage()
	rec := NewRecorder(store, RecorderConfig{BufferSize: 4})

	rec.Record(&Record{Outcome: "bogus"})
	rec.Record(&Record{Outcome: OutcomeCanceled})
	rec.Close()

	if rec.Written() != 1 {
		t.Errorf("Written() = %d, want 1", rec.Written())
	}
}
