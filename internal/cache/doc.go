// Package cache persists the last-known requisition snapshot and the
// authenticated session so a restarted client can paint immediately.
//
// # Contract
//
// Every write is best-effort: failures are logged and never returned to the
// caller. A failed or corrupt entry reads back as absent, which the engine
// treats as a cold start. Entries are JSON with no schema version.
//
// # Backends
//
//   - sqlite: a single-file database (default). WAL mode, one connection.
//   - redis: a shared key-value server, keys under a prefix, no expiry.
//   - memory: process-local, for tests and throwaway sessions.
package cache
