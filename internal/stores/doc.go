// Package stores provides the one-time-code ledger: short-lived, single-use
// codes keyed by (tenant, purpose, subject).
//
// # Design
//
// Every backend persists a versioned record holding the SHA-256 of the code,
// never the plaintext. Issue replaces any previous record for the same key in
// one atomic write, so the last writer wins. Redeem is a single atomic
// check-and-delete: the Redis backend uses WATCH/MULTI optimistic transactions
// with retry on contention, the Postgres backend a conditional DELETE ...
// RETURNING. Code comparisons are constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for code records.
// It does NOT enforce rate limits, dispatch codes, or make authentication
// decisions. Those belong to internal/limiters and internal/flows.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package.
//   - Log or expose plaintext codes after Issue returns them.
//   - Use non-constant-time comparisons for code matching.
package stores
