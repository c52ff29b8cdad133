// Package auth authenticates API callers.
//
// The service has a single configured operator account: the username and an
// Argon2id password hash live in security.auth. A successful login returns a
// short-lived HS256 JWT which the API accepts as a bearer token.
//
//   - Argon2id password hashing in PHC string format
//   - JWT access tokens validated by signature and expiry only
//
// Generate a hash for the config file with:
//
//	dlmsparser hash-password
package auth
