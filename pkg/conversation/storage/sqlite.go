package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite"

	"mercator-hq/relay/pkg/conversation"
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite" (pure Go, default)
	// or "sqlite3" (cgo).
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WALMode enables write-ahead logging.
	WALMode bool
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:        "data/conversations.db",
		Driver:      DriverModernc,
		BusyTimeout: 5 * time.Second,
		WALMode:     true,
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    owner_ref TEXT,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    ended_at INTEGER,
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    provider TEXT,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cost_estimate REAL NOT NULL DEFAULT 0,
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session_order ON messages(session_id, created_at, id);
`

// SQLite is a conversation.Backend on database/sql.
type SQLite struct {
	db     *sql.DB
	cfg    SQLiteConfig
	logger *slog.Logger
}

var _ conversation.Backend = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database and its schema.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q (must be %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, conversation.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{
		db:     db,
		cfg:    cfg,
		logger: slog.Default().With("component", "conversation.storage.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite conversation storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)
	return s, nil
}

func (s *SQLite) initialize() error {
	if s.cfg.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return conversation.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.cfg.BusyTimeout.Milliseconds())); err != nil {
		return conversation.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return conversation.NewStorageError("sqlite", "create_schema", err)
	}
	return nil
}

// Name implements conversation.Backend.
func (s *SQLite) Name() string { return "sqlite" }

// CreateSession implements conversation.Backend.
func (s *SQLite) CreateSession(ctx context.Context, sess *conversation.Session) error {
	meta, err := marshalMetadata(sess.Metadata)
	if err != nil {
		return conversation.NewStorageError("sqlite", "create_session", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_ref, status, created_at, ended_at, metadata)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT(id) DO NOTHING`,
		sess.ID, nullString(sess.OwnerRef), string(sess.Status), sess.CreatedAt.UnixMicro(), meta,
	)
	if err != nil {
		return conversation.NewStorageError("sqlite", "create_session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrSessionExists
	}
	return nil
}

// GetSession implements conversation.Backend.
func (s *SQLite) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	var (
		sess      conversation.Session
		ownerRef  sql.NullString
		status    string
		createdAt int64
		endedAt   sql.NullInt64
		meta      sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_ref, status, created_at, ended_at, metadata FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &ownerRef, &status, &createdAt, &endedAt, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, conversation.NewStorageError("sqlite", "get_session", err)
	}

	sess.OwnerRef = ownerRef.String
	sess.Status = conversation.Status(status)
	sess.CreatedAt = time.UnixMicro(createdAt).UTC()
	if endedAt.Valid {
		t := time.UnixMicro(endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	if sess.Metadata, err = unmarshalMetadata(meta.String); err != nil {
		return nil, conversation.NewStorageError("sqlite", "get_session", err)
	}
	return &sess, nil
}

// EndSession implements conversation.Backend.
func (s *SQLite) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, ended_at = COALESCE(ended_at, ?)
		WHERE id = ?`,
		string(conversation.StatusEnded), endedAt.UnixMicro(), id,
	)
	if err != nil {
		return conversation.NewStorageError("sqlite", "end_session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrSessionNotFound
	}
	return nil
}

// AppendMessage implements conversation.Backend.
func (s *SQLite) AppendMessage(ctx context.Context, m *conversation.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return conversation.NewStorageError("sqlite", "append_message", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, m.SessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.ErrSessionNotFound
	}
	if err != nil {
		return conversation.NewStorageError("sqlite", "append_message", err)
	}
	if conversation.Status(status) != conversation.StatusActive {
		return conversation.ErrSessionEnded
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, provider, tokens_used, cost_estimate, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, string(m.Role), m.Content, nullString(m.Provider),
		m.TokensUsed, m.CostEstimate, m.ResponseTimeMs, m.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return conversation.NewStorageError("sqlite", "append_message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return conversation.NewStorageError("sqlite", "append_message", err)
	}
	if err := tx.Commit(); err != nil {
		return conversation.NewStorageError("sqlite", "append_message", err)
	}
	m.ID = id
	return nil
}

// RecentMessages implements conversation.Backend.
func (s *SQLite) RecentMessages(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, provider, tokens_used, cost_estimate, response_time_ms, created_at
		FROM (
			SELECT * FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, conversation.NewStorageError("sqlite", "recent_messages", err)
	}
	defer rows.Close()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			m         conversation.Message
			role      string
			provider  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &provider,
			&m.TokensUsed, &m.CostEstimate, &m.ResponseTimeMs, &createdAt); err != nil {
			return nil, conversation.NewStorageError("sqlite", "scan", err)
		}
		m.Role = conversation.Role(role)
		m.Provider = provider.String
		m.CreatedAt = time.UnixMicro(createdAt).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, conversation.NewStorageError("sqlite", "recent_messages", err)
	}
	return msgs, nil
}

// CountMessages implements conversation.Backend.
func (s *SQLite) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, conversation.NewStorageError("sqlite", "count_messages", err)
	}
	return n, nil
}

// DeleteSession implements conversation.Backend.
func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return conversation.NewStorageError("sqlite", "delete_session", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return conversation.NewStorageError("sqlite", "delete_session", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return conversation.NewStorageError("sqlite", "delete_session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrSessionNotFound
	}
	if err := tx.Commit(); err != nil {
		return conversation.NewStorageError("sqlite", "delete_session", err)
	}
	return nil
}

// Ping implements conversation.Backend.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements conversation.Backend.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}
