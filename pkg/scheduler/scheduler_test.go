package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJob_Validation(t *testing.T) {
	tests := []struct {
		name    string
		job     string
		spec    string
		fn      func(context.Context)
		wantErr bool
	}{
		{name: "daily", job: "a", spec: "0 3 * * *", fn: func(context.Context) {}},
		{name: "descriptor", job: "b", spec: "@every 5m", fn: func(context.Context) {}},
		{name: "invalid spec", job: "c", spec: "not cron", fn: func(context.Context) {}, wantErr: true},
		{name: "six fields", job: "d", spec: "0 0 3 * * *", fn: func(context.Context) {}, wantErr: true},
		{name: "empty name", job: "", spec: "@daily", fn: func(context.Context) {}, wantErr: true},
		{name: "nil func", job: "e", spec: "@daily", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			err := s.AddJob(tt.job, tt.spec, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("AddJob() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddJob_Duplicate(t *testing.T) {
	s := New()
	if err := s.AddJob("sweep", "@every 1m", func(context.Context) {}); err != nil {
		t.Fatalf("AddJob() failed: %v", err)
	}
	err := s.AddJob("sweep", "@every 2m", func(context.Context) {})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("AddJob() error = %v, want ErrDuplicateJob", err)
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New()
	var runs atomic.Int32
	if err := s.AddJob("tick", "@every 1s", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatalf("AddJob() failed: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New()
	started := make(chan struct{})
	canceled := make(chan struct{})
	s.AddJob("long", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
			return
		}
		<-ctx.Done()
		close(canceled)
	})

	s.Start(context.Background())
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	s.Stop()
	select {
	case <-canceled:
	default:
		t.Error("Stop() returned before the running job observed cancellation")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestScheduler_ParentContextStops(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after parent context canceled")
	}
}

func TestEntriesAndRunNow(t *testing.T) {
	s := New()
	var ran atomic.Bool
	s.AddJob("prune", "0 3 * * *", func(context.Context) { ran.Store(true) })
	s.AddJob("sweep", "@every 5m", func(context.Context) {})

	s.Start(context.Background())
	defer s.Stop()

	entries := s.Entries()
	if len(entries) != 2 || entries[0].Name != "prune" || entries[1].Name != "sweep" {
		t.Fatalf("Entries() = %+v", entries)
	}
	for _, e := range entries {
		if e.Next.IsZero() {
			t.Errorf("entry %s has no next run", e.Name)
		}
	}

	if err := s.RunNow(context.Background(), "prune"); err != nil {
		t.Fatalf("RunNow() failed: %v", err)
	}
	if !ran.Load() {
		t.Error("RunNow() did not run the job")
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("RunNow(missing) error = %v, want ErrUnknownJob", err)
	}
}
