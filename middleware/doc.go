// Package middleware guards downstream HTTP handlers with credentials issued
// by goIdentity.
//
//   - [RequireCredential] verifies the bearer token through
//     Engine.VerifyCredential and stores the claims in the request context.
//   - [RequireRole] admits requests whose claims carry one of the given roles.
//
// The middleware does not parse tokens itself; every decision about a token
// is delegated to the engine.
package middleware
