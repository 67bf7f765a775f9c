// Package token provides digest primitives for Inkwell's session subsystem.
//
// It is the single source of truth for rotation-id hashing behavior: refresh
// sessions are keyed by a one-way digest of the token's rotation id (jti), and
// the raw id never touches storage.
//
// Design goals:
// - Default dev/back-compat mode: SHA-256(id) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(id, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - INKWELL_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
