package conversation

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Session is one ongoing conversation.
type Session struct {
	ID        string            `json:"id"`
	OwnerRef  string            `json:"owner_ref,omitempty"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

// Active reports whether the session accepts new messages.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// Message is one turn in a session. Provider, TokensUsed, CostEstimate and
// ResponseTimeMs are only set on assistant messages.
type Message struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Provider       string    `json:"provider,omitempty"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	CostEstimate   float64   `json:"cost_estimate,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionOptions configures CreateSession.
type SessionOptions struct {
	// ID is used as the session ID when set; otherwise one is generated.
	ID string

	OwnerRef string
	Metadata map[string]string
}

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when writing to an ENDED session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrStorage matches every StorageError.
	ErrStorage = errors.New("conversation storage failure")
)

// StorageError wraps a backend failure.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}
