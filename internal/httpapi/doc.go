// Package httpapi exposes the engine's public operations as JSON endpoints
// on a chi router.
//
// Every error is mapped to a status and a stable error string. Password
// reset requests answer 202 whether or not the email is known.
package httpapi
