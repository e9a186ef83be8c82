// Package store provides a SQLite-backed journal for collaborative editing
// sessions.
//
// The journal is append-only:
//   - Operations: every operation applied to a session's text, in the order
//     the client applied it, with its origin (local, remote, undo, redo)
//   - Comments: line comments, unique by comment id
//
// # Ordering
//
// Reads order by the seq column (INTEGER PRIMARY KEY AUTOINCREMENT), never
// by timestamps, so Replay reproduces the exact text the client saw.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
