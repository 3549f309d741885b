// Package storage provides durable conversation.Backend implementations.
//
//   - Memory: process-local maps, for tests and single-shot CLI use
//   - SQLite: database/sql over modernc.org/sqlite (driver "sqlite", the
//     default) or github.com/mattn/go-sqlite3 (driver "sqlite3")
//   - Postgres: pgx connection pool
//
// Every backend orders messages by (created_at, id) and creates its schema on
// startup.
package storage
