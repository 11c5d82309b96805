// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunBeginStepUp, RunRequestReset, etc.) accepts
// a typed dependency struct and returns results without side-effects beyond
// those dependencies. The root Engine builds the dependency structs and maps
// results back into its public types.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, code ledger,
// limiters, dispatcher, token issuer, audit and metrics. They do NOT own any
// of these resources. Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
//   - Return a backend error that is not mapped into Errors.
package flows
