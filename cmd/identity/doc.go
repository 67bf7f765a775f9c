// Package identity owns Inkwell's user model and credential verification.
//
// It provides user registration and lookup over Postgres, Argon2id password
// hashing behind an opaque verify call, and role semantics (admin/user) used
// by the access resolver. Session state lives in cmd/internal/auth/session;
// this package never sees refresh tokens.
package identity
