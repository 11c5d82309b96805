// Package credstore provides goIdentity.CredentialStore implementations.
//
// [Memory] keeps accounts in process and suits tests and single-node
// development. [Postgres] reads the accounts, account_roles and
// external_logins tables created by the bundled migrations. Both hash secrets
// with Argon2id from the password package and lock an account after
// repeated wrong secrets.
package credstore
