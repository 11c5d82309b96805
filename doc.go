// Package goIdentity provides password login, step-up login over one-time
// codes, code-based password reset and federated login, issuing signed JWT
// credentials that carry the account's roles.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and the consumed interfaces [CredentialStore],
// [Dispatcher] and [ExternalLoginResolver]. Flow orchestration, the one-time
// code ledger, throttling and audit dispatch live under internal/ and are not
// exported.
//
// # One-time codes
//
// Codes are six decimal digits drawn from crypto/rand. At most one code is
// live per (subject, purpose); issuing again replaces it. Only a SHA-256 of
// the code is stored, and a code redeems at most once even under concurrent
// attempts. Step-up codes are keyed by account ID, reset codes by the
// normalized email.
//
// # What this package must NOT do
//
//   - Return a code to the caller. Codes leave the engine only through the
//     Dispatcher.
//   - Reveal whether an email is registered through RequestReset.
//   - Log secrets or codes.
package goIdentity
