// Package storage is the persistent ledger of notification lifecycle.
//
// It is a backend-agnostic façade over three interchangeable engines:
//
//   - MongoDB (document store, preferred when MONGODB_URI is set)
//   - PostgreSQL (relational)
//   - SQLite (embedded, always available as the last fallback)
//
// Open tries them in that order and keeps the first that connects; the
// chosen backend is fixed for the process lifetime. No call site branches
// on the backend type.
//
// All write operations are idempotent at the record level: inserting an
// already-known id is a no-op, and the completed/failed markers are safe
// to repeat. The store never retries on its own; backend errors propagate
// to the caller.
package storage
