// Package store provides SQLite-backed durable storage for the cart client.
//
// Two concerns share one database file:
//   - Journal: every issued mutation request, its outcome, and the scopes
//     for which that outcome arrived too late to be applied
//   - Preferences: the client-side key-value storage (dark mode flag)
//
// # Ordering
//
// Journal rows are keyed by (session, issued_at). issued_at comes from the
// logical clock, never from wall time. All reads use
// ORDER BY issued_at ASC, session COLLATE BINARY ASC so output is stable.
//
// MaxIssuedAt lets a new process resume the logical clock after the highest
// value already recorded, which keeps issuedAt strictly increasing across
// runs that share a database.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Outcomes must reference a recorded request
package store
