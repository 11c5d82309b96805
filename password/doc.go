// Package password hashes account secrets with Argon2id for the bundled
// credential stores.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// NeedsRehash reports hashes produced with weaker parameters so a store can
// upgrade them after a successful verification.
package password
