// Package session implements Inkwell's session architecture.
//
// It provides signed short-lived access tokens, long-lived refresh tokens with
// rotation and reuse detection, and per-user mass revocation.
//
// Both token kinds are JWTs (HS256) signed with two independent secrets, so a
// leaked access signing key cannot forge refresh tokens and vice versa. Each
// refresh token carries a random rotation id (jti); only a one-way digest of
// the rotation id is stored server-side, keyed in the refresh_sessions table.
//
// Transport (HTTP cookies, bearer headers) is intentionally out of scope here;
// see cmd/internal/auth/api.
package session
