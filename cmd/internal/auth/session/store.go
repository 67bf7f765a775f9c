package session

import (
	"context"
	"time"
)

// Record mirrors one refresh_sessions row, keyed by the rotation-id digest.
// The raw rotation id (jti) is never persisted.
type Record struct {
	TokenHash string
	UserID    string

	IssuedAt  time.Time
	ExpiresAt time.Time

	RevokedAt      *time.Time
	ReplacedByHash *string

	CreatedByIP *string
	UserAgent   *string
}

// Active reports whether the record can still be rotated: not revoked and not
// already replaced. Expiry is checked separately so an expired-but-active
// record can be distinguished from a reused one.
func (r Record) Active() bool {
	return r.RevokedAt == nil && r.ReplacedByHash == nil
}

// Store abstracts persistence for refresh-session state.
//
// Implementations must make Rotate all-or-nothing: a half-applied rotation
// (old revoked but new missing, or vice versa) is a correctness violation.
type Store interface {
	// Create inserts a new active record.
	Create(ctx context.Context, rec Record) error

	// Lookup loads a record by rotation-id digest. Missing -> ErrUnknownSession.
	Lookup(ctx context.Context, tokenHash string) (Record, error)

	// Rotate atomically revokes the record at oldHash (linking it to next via
	// ReplacedByHash) and inserts next. The update is conditional on the old
	// record still being active: a concurrent rotation that lost the race gets
	// ErrSessionNotActive and must be treated as reuse by the caller.
	// Missing old record -> ErrUnknownSession.
	Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error

	// Revoke marks one record revoked with no replacement (idempotent).
	Revoke(ctx context.Context, now time.Time, tokenHash string) error

	// RevokeAll marks every active record of userID revoked (idempotent).
	// Used for mass invalidation after reuse detection and logout-everywhere.
	RevokeAll(ctx context.Context, now time.Time, userID string) error
}
