// Package limiters provides Redis fixed-window throttles for the one-time-code
// flows.
//
// [CodeLimiter] counts code issuance per subject and per client IP, and code
// redemption attempts per subject and per client IP. Windows start on the
// first hit and expire on their own.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
