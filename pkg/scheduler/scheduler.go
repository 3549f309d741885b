package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrUnknownJob is returned by RunNow for an unregistered name.
	ErrUnknownJob = errors.New("unknown job")
)

// Entry describes a registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type job struct {
	spec string
	id   cron.EntryID
	fn   func(context.Context)
}

// Scheduler wraps a cron runner with named jobs and context propagation.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	logger  *slog.Logger
}

// New creates a stopped scheduler.
func New() *Scheduler {
	logger := slog.Default().With("component", "scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
		logger: logger,
	}
}

// AddJob registers fn under name on a cron spec. Jobs may be added before
// or after Start.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context)) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("job %q has no function", name)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %q: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	j := &job{spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, j) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	j.id = id
	s.jobs[name] = j

	s.logger.Info("job registered", "job", name, "schedule", spec)
	return nil
}

// Start begins running jobs. Jobs receive a context that is canceled by
// Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	go func(done <-chan struct{}) {
		<-done
		s.Stop()
	}(s.ctx.Done())
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs the named job synchronously on ctx.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	j.fn(ctx)
	return nil
}

// Entries returns registered jobs sorted by name. Next and Prev are zero
// until the scheduler has started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := s.cron.Entry(j.id)
		out = append(out, Entry{Name: name, Spec: j.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) run(name string, j *job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.logger.Debug("job started", "job", name)
	j.fn(ctx)
	s.logger.Debug("job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
