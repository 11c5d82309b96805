// Package jwt issues and verifies identity credentials: signed JWTs binding a
// subject, display name and role snapshot to an expiry. HS256 and Ed25519 are
// supported, with kid-based key rotation through VerifyKeys.
package jwt
