// Package audit records one Record per dispatched message.
//
// A Record captures which providers were tried, which one answered (if any),
// the outcome, latency, token usage and estimated cost. Records never carry
// message content.
//
// # Recording
//
// The Recorder accepts records without blocking the dispatch path. Records
// are queued on a buffered channel and written by a single worker with a
// per-write timeout. When the queue is full the record is dropped and
// counted:
//
//	rec := audit.NewRecorder(store, audit.RecorderConfig{BufferSize: 1000})
//	defer rec.Close()
//	rec.Record(&audit.Record{SessionID: id, Outcome: audit.OutcomeSuccess})
//
// # Storage
//
// Two backends implement Storage: MemoryStorage for tests and single-process
// use, and SQLiteStorage for durable records (modernc.org/sqlite or
// github.com/mattn/go-sqlite3).
//
// # Retention
//
// Pruner deletes records older than the configured number of days. It is
// usually run from the maintenance scheduler on a cron spec.
package audit
