package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/relay/pkg/conversation"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS relay_sessions (
    id         TEXT PRIMARY KEY,
    owner_ref  TEXT,
    status     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ,
    metadata   JSONB
);

CREATE TABLE IF NOT EXISTS relay_messages (
    id               BIGSERIAL PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES relay_sessions(id) ON DELETE CASCADE,
    role             TEXT NOT NULL,
    content          TEXT NOT NULL,
    provider         TEXT,
    tokens_used      INTEGER NOT NULL DEFAULT 0,
    cost_estimate    DOUBLE PRECISION NOT NULL DEFAULT 0,
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_messages_session_order
    ON relay_messages (session_id, created_at, id);
`

// Postgres is a conversation.Backend on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ conversation.Backend = (*Postgres)(nil)

// NewPostgres connects to dsn, verifies the connection and migrates the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres storage: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres storage: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres storage: migrate: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		logger: slog.Default().With("component", "conversation.storage.postgres"),
	}
	p.logger.Info("PostgreSQL conversation storage initialized",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
	)
	return p, nil
}

// Name implements conversation.Backend.
func (p *Postgres) Name() string { return "postgres" }

// CreateSession implements conversation.Backend.
func (p *Postgres) CreateSession(ctx context.Context, s *conversation.Session) error {
	meta, err := marshalMetadata(s.Metadata)
	if err != nil {
		return conversation.NewStorageError("postgres", "create_session", err)
	}

	const q = `
		INSERT INTO relay_sessions (id, owner_ref, status, created_at, ended_at, metadata)
		VALUES ($1, $2, $3, $4, NULL, $5::jsonb)
		ON CONFLICT (id) DO NOTHING`

	tag, err := p.pool.Exec(ctx, q, s.ID, nullString(s.OwnerRef), string(s.Status), s.CreatedAt, meta)
	if err != nil {
		return conversation.NewStorageError("postgres", "create_session", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrSessionExists
	}
	return nil
}

// GetSession implements conversation.Backend.
func (p *Postgres) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	const q = `
		SELECT id, owner_ref, status, created_at, ended_at, metadata::text
		FROM   relay_sessions
		WHERE  id = $1`

	var (
		s        conversation.Session
		ownerRef *string
		status   string
		endedAt  *time.Time
		meta     *string
	)
	err := p.pool.QueryRow(ctx, q, id).Scan(&s.ID, &ownerRef, &status, &s.CreatedAt, &endedAt, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, conversation.NewStorageError("postgres", "get_session", err)
	}

	if ownerRef != nil {
		s.OwnerRef = *ownerRef
	}
	s.Status = conversation.Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	if endedAt != nil {
		t := endedAt.UTC()
		s.EndedAt = &t
	}
	if meta != nil {
		if s.Metadata, err = unmarshalMetadata(*meta); err != nil {
			return nil, conversation.NewStorageError("postgres", "get_session", err)
		}
	}
	return &s, nil
}

// EndSession implements conversation.Backend.
func (p *Postgres) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	const q = `
		UPDATE relay_sessions
		SET    status = $1, ended_at = COALESCE(ended_at, $2)
		WHERE  id = $3`

	tag, err := p.pool.Exec(ctx, q, string(conversation.StatusEnded), endedAt, id)
	if err != nil {
		return conversation.NewStorageError("postgres", "end_session", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrSessionNotFound
	}
	return nil
}

// AppendMessage implements conversation.Backend.
func (p *Postgres) AppendMessage(ctx context.Context, m *conversation.Message) error {
	const q = `
		INSERT INTO relay_messages
		    (session_id, role, content, provider, tokens_used, cost_estimate, response_time_ms, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE  EXISTS (SELECT 1 FROM relay_sessions WHERE id = $1 AND status = $9)
		RETURNING id`

	var id int64
	err := p.pool.QueryRow(ctx, q,
		m.SessionID,
		string(m.Role),
		m.Content,
		nullString(m.Provider),
		m.TokensUsed,
		m.CostEstimate,
		m.ResponseTimeMs,
		m.CreatedAt,
		string(conversation.StatusActive),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return p.missingOrEnded(ctx, m.SessionID)
	}
	if err != nil {
		return conversation.NewStorageError("postgres", "append_message", err)
	}
	m.ID = id
	return nil
}

// missingOrEnded reports why an append matched no session row.
func (p *Postgres) missingOrEnded(ctx context.Context, id string) error {
	if _, err := p.GetSession(ctx, id); err != nil {
		return err
	}
	return conversation.ErrSessionEnded
}

// RecentMessages implements conversation.Backend.
func (p *Postgres) RecentMessages(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error) {
	const q = `
		SELECT id, session_id, role, content, provider, tokens_used, cost_estimate, response_time_ms, created_at
		FROM (
		    SELECT * FROM relay_messages
		    WHERE  session_id = $1
		    ORDER  BY created_at DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY created_at ASC, id ASC`

	// LIMIT NULL returns every row.
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := p.pool.Query(ctx, q, sessionID, lim)
	if err != nil {
		return nil, conversation.NewStorageError("postgres", "recent_messages", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (conversation.Message, error) {
		var (
			m        conversation.Message
			role     string
			provider *string
		)
		if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &provider,
			&m.TokensUsed, &m.CostEstimate, &m.ResponseTimeMs, &m.CreatedAt); err != nil {
			return conversation.Message{}, err
		}
		m.Role = conversation.Role(role)
		if provider != nil {
			m.Provider = *provider
		}
		m.CreatedAt = m.CreatedAt.UTC()
		return m, nil
	})
	if err != nil {
		return nil, conversation.NewStorageError("postgres", "recent_messages", err)
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return msgs, nil
}

// CountMessages implements conversation.Backend.
func (p *Postgres) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM relay_messages WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, conversation.NewStorageError("postgres", "count_messages", err)
	}
	return n, nil
}

// DeleteSession implements conversation.Backend. Messages go with the
// session through the foreign key cascade.
func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM relay_sessions WHERE id = $1`, id)
	if err != nil {
		return conversation.NewStorageError("postgres", "delete_session", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrSessionNotFound
	}
	return nil
}

// Ping implements conversation.Backend.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements conversation.Backend.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
