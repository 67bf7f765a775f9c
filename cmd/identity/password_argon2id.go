package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams defines Argon2id hashing parameters for password hashing.
// These values must be chosen carefully to balance security and performance.
type Argon2idParams struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2idParams returns production defaults (OWASP-aligned).
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB: 64 * 1024,
		Time:      3,
		Threads:   2,
		SaltLen:   16,
		KeyLen:    32,
	}
}

// ErrInvalidHash is returned when a stored hash is not a well-formed PHC argon2id string.
var ErrInvalidHash = errors.New("invalid argon2id hash format")

const (
	minPasswordLen = 8
	maxPasswordLen = 256

	// Anti-DoS bounds during Verify: refuse hashes demanding absurd work.
	verifyMaxMemoryKiB = 1 << 21 // 2 GiB
	verifyMaxTime      = 16
)

// HashPassword returns a PHC-style Argon2id hash string.
//
// Security contract:
// - Enforces a baseline min length of 8 and max of 256.
// - Salt is generated per call; the same password never hashes twice to the same string.
func HashPassword(passwordPlain string, p Argon2idParams) (string, error) {
	if len(passwordPlain) < minPasswordLen {
		return "", errors.New("password too short")
	}
	if len(passwordPlain) > maxPasswordLen {
		return "", errors.New("password too long")
	}
	p = sanitizeParams(p)

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(passwordPlain), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against a PHC Argon2id hash.
//
// Security contract:
// - Strict PHC parsing; malformed hashes fail closed with ErrInvalidHash.
// - Constant-time comparison of derived keys.
// - Anti-DoS: verification refuses hashes with parameters wildly above configured maxima.
func VerifyPassword(passwordPlain string, encodedPHC string) (bool, error) {
	if len(passwordPlain) > maxPasswordLen {
		return false, nil
	}

	parts := strings.Split(encodedPHC, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidHash
	}

	var memoryKiB, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKiB, &timeCost, &threads); err != nil {
		return false, ErrInvalidHash
	}
	if memoryKiB == 0 || timeCost == 0 || threads == 0 {
		return false, ErrInvalidHash
	}
	if memoryKiB > verifyMaxMemoryKiB || timeCost > verifyMaxTime {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return false, ErrInvalidHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) < 16 {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(passwordPlain), salt, timeCost, memoryKiB, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func sanitizeParams(p Argon2idParams) Argon2idParams {
	def := DefaultArgon2idParams()
	if p.MemoryKiB < 8*1024 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Time == 0 {
		p.Time = def.Time
	}
	if p.Threads == 0 {
		p.Threads = def.Threads
	}
	if p.SaltLen < 8 {
		p.SaltLen = def.SaltLen
	}
	if p.KeyLen < 16 {
		p.KeyLen = def.KeyLen
	}
	return p
}
