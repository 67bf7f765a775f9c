package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inkwell/cmd/identity"
)

// Principal is the minimal identity envelope carried in token claims and
// propagated to handlers after verification.
type Principal struct {
	UserID string
	Role   identity.Role
}

// AccessClaims is the verified payload of an access token.
type AccessClaims struct {
	Principal
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the verified payload of a refresh token.
type RefreshClaims struct {
	Principal
	RotationID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Codec signs and verifies both token kinds. Stateless: issued access tokens
// cannot be revoked before expiry, which is why AccessTTL stays short.
type Codec struct {
	issuer    string
	accessTTL time.Duration
	refresh   time.Duration
	skew      time.Duration

	accessSecret  []byte
	refreshSecret []byte
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewCodec builds a Codec from validated config.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refresh:       cfg.RefreshTTL,
		skew:          cfg.ClockSkew,
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
	}, nil
}

// IssueAccess signs a short-lived access token for p.
func (c *Codec) IssueAccess(p Principal, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)

	claims := tokenClaims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a long-lived refresh token carrying rotationID as jti.
func (c *Codec) IssueRefresh(p Principal, rotationID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.refresh)

	claims := tokenClaims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    c.issuer,
			ID:        rotationID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess verifies an access token and returns its claims.
// Fails with ErrTokenExpired or ErrBadSignature.
func (c *Codec) VerifyAccess(tokenStr string, now time.Time) (AccessClaims, error) {
	claims, err := c.verify(tokenStr, c.accessSecret, now)
	if err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{
		Principal: claims.principal(),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyRefresh verifies a refresh token and returns its claims.
// Fails with ErrTokenExpired, ErrBadSignature, or ErrMissingRotationID.
//
// On ErrTokenExpired the signature was still valid, and the claims are
// returned alongside the error so the caller can revoke the matching stored
// session.
func (c *Codec) VerifyRefresh(tokenStr string, now time.Time) (RefreshClaims, error) {
	claims, err := c.verify(tokenStr, c.refreshSecret, now)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return RefreshClaims{}, err
	}
	if claims == nil {
		return RefreshClaims{}, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return RefreshClaims{}, ErrMissingRotationID
	}
	return RefreshClaims{
		Principal:  claims.principal(),
		RotationID: claims.ID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, err
}

func (c *Codec) verify(tokenStr string, secret []byte, now time.Time) (*tokenClaims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}
	// Sanity bound to avoid pathological inputs.
	if len(tokenStr) > 4096 {
		return nil, ErrBadSignature
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims tokenClaims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	expired := errors.Is(err, jwt.ErrTokenExpired)
	switch {
	case err != nil && !expired:
		return nil, ErrBadSignature
	case err == nil && !token.Valid:
		return nil, ErrBadSignature
	}

	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrBadSignature
	}
	if expired {
		return &claims, ErrTokenExpired
	}
	return &claims, nil
}

func (tc *tokenClaims) principal() Principal {
	return Principal{UserID: tc.Subject, Role: identity.Role(tc.Role)}
}
