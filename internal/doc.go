// Package internal contains helpers that are private to goIdentity, chiefly
// one-time code generation and hashing.
//
// # Sub-packages
//
//   - appconfig - daemon configuration loaded through viper
//   - audit - async event dispatch (Dispatcher + Sink implementations)
//   - flows - pure-function orchestrators for every Engine operation
//   - httpapi - chi router exposing Engine operations as JSON endpoints
//   - limiters - Redis fixed-window throttles for code issuance and redemption
//   - logging - zap logger construction
//   - migrate - embedded SQL migrations run through golang-migrate
//   - stores - one-time-code ledger backends (Redis, Postgres)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
