// Package audit implements async event dispatching for the authentication flows.
//
// # Components
//
//   - [Sink] interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher] buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] structured audit record with id, timestamp, type, account, tenant, IP, metadata.
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goIdentity or any sibling internal package.
//   - Carry one-time codes or secrets in Metadata.
package audit
