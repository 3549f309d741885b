package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite"
)

// SQLiteConfig configures the SQLite record store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is "sqlite" (pure Go, default) or "sqlite3" (cgo).
	Driver string

	// BusyTimeout is how long to wait for locks.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WALMode enables write-ahead logging.
	WALMode bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dispatch_records (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    session_id TEXT NOT NULL,
    providers_tried TEXT,
    provider_used TEXT,
    outcome TEXT NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cost REAL NOT NULL DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_dispatch_records_timestamp ON dispatch_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_dispatch_records_session ON dispatch_records(session_id, timestamp);
`

// SQLiteStorage stores records in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	cfg    SQLiteConfig
	logger *slog.Logger
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(cfg SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{
		db:     db,
		cfg:    cfg,
		logger: slog.Default().With("component", "audit.storage.sqlite"),
	}

	if cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "create_schema", err)
	}

	s.logger.Info("SQLite audit storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)
	return s, nil
}

// Store inserts record. Storing the same ID twice is an error.
func (s *SQLiteStorage) Store(ctx context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return NewStorageError("sqlite", "store", err)
	}

	tried, err := json.Marshal(record.ProvidersTried)
	if err != nil {
		return NewStorageError("sqlite", "store", fmt.Errorf("failed to marshal providers: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatch_records (
			id, timestamp, session_id, providers_tried, provider_used,
			outcome, latency_ms, tokens_used, cost, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UnixMicro(),
		record.SessionID,
		string(tried),
		record.ProviderUsed,
		string(record.Outcome),
		record.LatencyMs,
		record.TokensUsed,
		record.Cost,
		record.Error,
	)
	if err != nil {
		return NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns matching records newest first.
func (s *SQLiteStorage) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	where, args := buildWhere(filter)
	query := `SELECT id, timestamp, session_id, providers_tried, provider_used,
		outcome, latency_ms, tokens_used, cost, error
		FROM dispatch_records` + where + ` ORDER BY timestamp DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	results := make([]*Record, 0)
	for rows.Next() {
		var (
			r        Record
			ts       int64
			tried    sql.NullString
			used     sql.NullString
			outcome  string
			errorTxt sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.SessionID, &tried, &used,
			&outcome, &r.LatencyMs, &r.TokensUsed, &r.Cost, &errorTxt); err != nil {
			return nil, NewStorageError("sqlite", "query", err)
		}
		r.Timestamp = time.UnixMicro(ts)
		r.ProviderUsed = used.String
		r.Outcome = Outcome(outcome)
		r.Error = errorTxt.String
		if tried.Valid && tried.String != "" && tried.String != "null" {
			if err := json.Unmarshal([]byte(tried.String), &r.ProvidersTried); err != nil {
				return nil, NewStorageError("sqlite", "query", fmt.Errorf("failed to unmarshal providers: %w", err))
			}
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	return results, nil
}

// Count returns the number of matching records. Limit is ignored.
func (s *SQLiteStorage) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter)

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch_records"+where, args...).Scan(&n); err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// DeleteOlderThan removes records with a timestamp before cutoff.
func (s *SQLiteStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM dispatch_records WHERE timestamp < ?", cutoff.UnixMicro())
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func buildWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since.UnixMicro())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, f.Until.UnixMicro())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
