package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default cache settings.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000
)

// Config configures a Store.
type Config struct {
	// CacheTTL bounds how long a cached session or message window is reused.
	CacheTTL time.Duration

	// CacheMaxEntries bounds each of the two caches.
	CacheMaxEntries int
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
}

// window is a cached tail of a session's history. complete is set when the
// tail holds the whole history.
type window struct {
	messages []Message
	limit    int
	complete bool
}

// Store is the cache-aside conversation store.
type Store struct {
	backend  Backend
	sessions *Cache[*Session]
	windows  *Cache[window]
	logger   *slog.Logger

	clockMu   sync.Mutex
	now       func() time.Time
	lastStamp time.Time

	// writes counts appends per session so a window read from the backend
	// is only cached if no append landed while it was in flight. lifecycle
	// does the same for session reads racing EndSession and DeleteHistory.
	writesMu  sync.Mutex
	writes    map[string]uint64
	lifecycle map[string]uint64
}

// NewStore wraps backend with caching.
func NewStore(backend Backend, cfg Config) *Store {
	cfg.ApplyDefaults()
	return &Store{
		backend:  backend,
		sessions: NewCache[*Session](cfg.CacheTTL, cfg.CacheMaxEntries),
		windows:  NewCache[window](cfg.CacheTTL, cfg.CacheMaxEntries),
		logger:   slog.Default().With("component", "conversation", "backend", backend.Name()),
		now:      time.Now,
		writes:    make(map[string]uint64),
		lifecycle: make(map[string]uint64),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = now
}

// stamp returns a creation time that never goes backwards within this
// process, at microsecond precision so every backend round-trips it exactly.
func (s *Store) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if t.Before(s.lastStamp) {
		t = s.lastStamp
	}
	s.lastStamp = t
	return t
}

// CreateSession creates an ACTIVE session.
func (s *Store) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{
		ID:        id,
		OwnerRef:  opts.OwnerRef,
		Status:    StatusActive,
		CreatedAt: s.stamp(),
		Metadata:  opts.Metadata,
	}
	if err := s.backend.CreateSession(ctx, sess); err != nil {
		return nil, s.wrap("create_session", err)
	}

	s.sessions.Set(id, sess.Clone())
	s.logger.Debug("session created", "session_id", id)
	return sess, nil
}

// GetSession returns the session, from cache when possible.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if cached, ok := s.sessions.Get(id); ok {
		return cached.Clone(), nil
	}

	s.writesMu.Lock()
	seen := s.lifecycle[id]
	s.writesMu.Unlock()

	sess, err := s.backend.GetSession(ctx, id)
	if err != nil {
		return nil, s.wrap("get_session", err)
	}

	s.writesMu.Lock()
	if s.lifecycle[id] == seen {
		s.sessions.Set(id, sess.Clone())
	}
	s.writesMu.Unlock()
	return sess, nil
}

// EndSession marks the session ENDED. Ending an ended session is a no-op.
func (s *Store) EndSession(ctx context.Context, id string) (*Session, error) {
	err := s.backend.EndSession(ctx, id, s.stamp())
	s.invalidateSession(id)
	if err != nil {
		return nil, s.wrap("end_session", err)
	}
	return s.GetSession(ctx, id)
}

// invalidateSession drops the cached session and stops reads already in
// flight from caching what they saw before the change.
func (s *Store) invalidateSession(id string) {
	s.writesMu.Lock()
	s.lifecycle[id]++
	s.sessions.Delete(id)
	s.writesMu.Unlock()
}

// AppendMessage stores m in an ACTIVE session. CreatedAt is stamped by the
// store and m.ID is assigned by the backend.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}

	sess, err := s.GetSession(ctx, m.SessionID)
	if err != nil {
		return err
	}
	if !sess.Active() {
		return ErrSessionEnded
	}

	m.CreatedAt = s.stamp()
	if err := s.backend.AppendMessage(ctx, m); err != nil {
		if errors.Is(err, ErrSessionEnded) {
			s.invalidateSession(m.SessionID)
		}
		return s.wrap("append_message", err)
	}

	s.writesMu.Lock()
	s.writes[m.SessionID]++
	s.windows.Delete(m.SessionID)
	s.writesMu.Unlock()
	return nil
}

// GetRecentMessages returns up to limit most recent messages, oldest first.
// limit <= 0 returns the whole history.
func (s *Store) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if w, ok := s.windows.Get(sessionID); ok {
		if msgs, ok := w.tail(limit); ok {
			return msgs, nil
		}
	}

	s.writesMu.Lock()
	seen := s.writes[sessionID]
	s.writesMu.Unlock()

	msgs, err := s.backend.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, s.wrap("recent_messages", err)
	}

	s.writesMu.Lock()
	if s.writes[sessionID] == seen {
		s.windows.Set(sessionID, window{
			messages: slices.Clone(msgs),
			limit:    limit,
			complete: limit <= 0 || len(msgs) < limit,
		})
	}
	s.writesMu.Unlock()
	return msgs, nil
}

// tail serves a request for limit messages from the cached window when the
// window is large enough.
func (w window) tail(limit int) ([]Message, bool) {
	switch {
	case limit <= 0:
		if !w.complete {
			return nil, false
		}
		return slices.Clone(w.messages), true
	case w.complete || limit <= w.limit:
		start := max(len(w.messages)-limit, 0)
		return slices.Clone(w.messages[start:]), true
	default:
		return nil, false
	}
}

// CountMessages returns the number of messages in the session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := s.backend.CountMessages(ctx, sessionID)
	if err != nil {
		return 0, s.wrap("count_messages", err)
	}
	return n, nil
}

// DeleteHistory removes the session and every message in it.
func (s *Store) DeleteHistory(ctx context.Context, sessionID string) error {
	err := s.backend.DeleteSession(ctx, sessionID)
	s.invalidateSession(sessionID)
	s.writesMu.Lock()
	s.writes[sessionID]++
	s.windows.Delete(sessionID)
	s.writesMu.Unlock()
	if err != nil {
		return s.wrap("delete_session", err)
	}
	s.logger.Info("session history deleted", "session_id", sessionID)
	return nil
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// CacheStats returns session and window cache counters.
func (s *Store) CacheStats() (sessions, windows CacheStats) {
	return s.sessions.Stats(), s.windows.Stats()
}

// Close stops the caches and closes the backend.
func (s *Store) Close() error {
	s.sessions.Close()
	s.windows.Close()
	return s.backend.Close()
}

// wrap passes lifecycle sentinels through and wraps everything else as a
// StorageError.
func (s *Store) wrap(op string, err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExists), errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrStorage), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return NewStorageError(s.backend.Name(), op, err)
	}
}
