package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig configures the asynchronous recorder.
type RecorderConfig struct {
	// BufferSize is the queue capacity.
	// Default: 1000
	BufferSize int

	// WriteTimeout bounds one storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// OnDrop is called once for every record dropped because the queue was full.
	OnDrop func()
}

// Recorder writes records to Storage from a background worker.
type Recorder struct {
	storage    Storage
	config     RecorderConfig
	recordChan chan *Record
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	dropped    atomic.Uint64
	written    atomic.Uint64
	logger     *slog.Logger

	// mu orders enqueues before the close of done, so the drain sees every
	// record Record accepted.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(storage Storage, config RecorderConfig) *Recorder {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *Record, config.BufferSize),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"buffer_size", config.BufferSize,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues record for writing. It never blocks. A missing ID or
// Timestamp is filled in.
func (r *Recorder) Record(record *Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	r.logger.Info("dispatch recorded",
		"record_id", record.ID,
		"session_id", record.SessionID,
		"outcome", record.Outcome,
		"provider_used", record.ProviderUsed,
		"providers_tried", record.ProvidersTried,
		"latency_ms", record.LatencyMs,
		"tokens_used", record.TokensUsed,
		"cost", record.Cost,
	)

	select {
	case r.recordChan <- record:
		return nil
	default:
		r.dropped.Add(1)
		if r.config.OnDrop != nil {
			r.config.OnDrop()
		}
		r.logger.Warn("audit buffer full, dropping record",
			"record_id", record.ID,
			"buffer_size", r.config.BufferSize,
		)
		return ErrBufferFull
	}
}

// Dropped returns the number of records dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of records successfully stored.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Pending returns the number of queued records.
func (r *Recorder) Pending() int {
	return len(r.recordChan)
}

// Close stops accepting records, drains the queue and waits for the worker.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.done)
		r.mu.Unlock()
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			r.logger.Info("draining audit channel before shutdown",
				"pending_count", len(r.recordChan),
			)
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store audit record",
			"record_id", record.ID,
			"session_id", record.SessionID,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", record.ID,
			"duration_ms", d.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
