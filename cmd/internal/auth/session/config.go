package session

import (
	"crypto/subtle"
	"os"
	"strings"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls token TTLs, clock skew tolerance, and the two independent JWT
// signing secrets. It is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of both token kinds.
	Issuer string

	// AccessTTL defines the lifetime of access tokens (minutes-scale).
	AccessTTL time.Duration

	// RefreshTTL defines the lifetime of refresh tokens (days-scale).
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// AccessSecret signs access tokens. Required.
	AccessSecret []byte

	// RefreshSecret signs refresh tokens. Required, and must differ from AccessSecret
	// so a leaked key of one kind cannot forge the other.
	RefreshSecret []byte
}

const minSecretBytes = 32

// DefaultConfig returns a configuration with secure TTL defaults and no secrets.
// Secrets must always come from the environment.
func DefaultConfig() Config {
	return Config{
		Issuer:     "inkwell",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - INKWELL_JWT_ACCESS_SECRET (>= 32 bytes)
//   - INKWELL_JWT_REFRESH_SECRET (>= 32 bytes, distinct from the access secret)
//
// Optional (durations must be valid Go duration strings):
//   - INKWELL_AUTH_ISSUER
//   - INKWELL_AUTH_ACCESS_TTL
//   - INKWELL_AUTH_REFRESH_TTL
//   - INKWELL_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid. The process must not start
// without both secrets.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("INKWELL_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("INKWELL_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("INKWELL_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("INKWELL_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.AccessSecret = []byte(strings.TrimSpace(os.Getenv("INKWELL_JWT_ACCESS_SECRET")))
	cfg.RefreshSecret = []byte(strings.TrimSpace(os.Getenv("INKWELL_JWT_REFRESH_SECRET")))

	return cfg, cfg.Validate()
}

// Validate enforces the secret invariants. Refresh tokens must never outlive
// their access counterpart policy (refresh TTL > access TTL).
func (c Config) Validate() error {
	if len(c.AccessSecret) < minSecretBytes || len(c.RefreshSecret) < minSecretBytes {
		return ErrConfig
	}
	if subtle.ConstantTimeCompare(c.AccessSecret, c.RefreshSecret) == 1 {
		return ErrConfig
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= c.AccessTTL {
		return ErrConfig
	}
	return nil
}
