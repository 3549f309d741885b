package conversation

import (
	"context"
	"time"
)

// Backend is the durable store behind Store.
//
// Implementations return ErrSessionNotFound for unknown sessions and
// ErrSessionExists for duplicate IDs; any other failure is reported as a
// *StorageError.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)

	// EndSession marks the session ENDED at endedAt. Ending an ended session
	// leaves its original EndedAt in place.
	EndSession(ctx context.Context, id string, endedAt time.Time) error

	// AppendMessage stores m and assigns m.ID. Appending to an ENDED session
	// returns ErrSessionEnded.
	AppendMessage(ctx context.Context, m *Message) error

	// RecentMessages returns up to limit most recent messages, oldest first,
	// ordered by (CreatedAt, ID). limit <= 0 returns every message.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	CountMessages(ctx context.Context, sessionID string) (int, error)

	// DeleteSession removes the session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
