package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/relay/pkg/conversation"
)

// Memory is an in-memory conversation.Backend.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*conversation.Session
	messages map[string][]conversation.Message
	nextID   int64
}

var _ conversation.Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*conversation.Session),
		messages: make(map[string][]conversation.Message),
	}
}

// Name implements conversation.Backend.
func (m *Memory) Name() string { return "memory" }

// CreateSession implements conversation.Backend.
func (m *Memory) CreateSession(ctx context.Context, s *conversation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return conversation.ErrSessionExists
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession implements conversation.Backend.
func (m *Memory) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, conversation.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// EndSession implements conversation.Backend.
func (m *Memory) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return conversation.ErrSessionNotFound
	}
	if s.Status != conversation.StatusEnded {
		s.Status = conversation.StatusEnded
		s.EndedAt = &endedAt
	}
	return nil
}

// AppendMessage implements conversation.Backend.
func (m *Memory) AppendMessage(ctx context.Context, msg *conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return conversation.ErrSessionNotFound
	}
	if !s.Active() {
		return conversation.ErrSessionEnded
	}
	m.nextID++
	msg.ID = m.nextID

	// Keep (CreatedAt, ID) order even if a caller supplies an older stamp.
	msgs := m.messages[msg.SessionID]
	i := len(msgs)
	for i > 0 && msgs[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	msgs = append(msgs, conversation.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = *msg
	m.messages[msg.SessionID] = msgs
	return nil
}

// RecentMessages implements conversation.Backend.
func (m *Memory) RecentMessages(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]conversation.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}

// CountMessages implements conversation.Backend.
func (m *Memory) CountMessages(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID]), nil
}

// DeleteSession implements conversation.Backend.
func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return conversation.ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// Ping implements conversation.Backend.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close implements conversation.Backend.
func (m *Memory) Close() error { return nil }
