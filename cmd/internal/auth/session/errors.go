package session

import "errors"

var (
	// ErrTokenMissing is returned when no token was presented at all.
	ErrTokenMissing = errors.New("token missing")

	// ErrBadSignature is returned when a token fails signature or structural verification.
	ErrBadSignature = errors.New("bad token signature")

	// ErrTokenExpired is returned when a token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingRotationID is returned when a refresh token carries no jti claim.
	ErrMissingRotationID = errors.New("refresh token missing rotation id")

	// ErrUnknownSession is returned when a refresh token's rotation id matches no stored session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionExpired is returned when the stored refresh session is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrReuseDetected is returned when a rotated or revoked refresh token is presented again.
	// The service revokes every session of the affected user before returning this.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrSessionNotActive is returned by Store.Rotate when the old record stopped being
	// active between lookup and rotation (concurrent rotation lost the race).
	ErrSessionNotActive = errors.New("session not active")

	// ErrUnavailable is returned when the session store cannot be reached
	// (timeout, broken connection). Maps to 503, never to an auth failure.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
