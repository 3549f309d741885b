// Package conversation persists sessions and their message history behind a
// cache-aside [Store].
//
// Reads check an in-process TTL cache first; on a miss the durable [Backend]
// is read and the cache repopulated. Writes go to the backend and then
// invalidate the affected cache entries, so a reader never sees a cached
// value older than the last successful write from this process.
//
// Sessions are only ever created, appended to, ended, or deleted on explicit
// request. The engine never deletes history on its own.
//
// Backends live in the storage subpackage: in-memory, SQLite and PostgreSQL.
package conversation
