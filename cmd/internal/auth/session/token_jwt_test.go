package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"inkwell/cmd/identity"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	return cfg
}

func testPrincipal() Principal {
	return Principal{UserID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Role: identity.RoleUser}
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := codec.IssueAccess(testPrincipal(), now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := codec.VerifyAccess(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != testPrincipal().UserID || claims.Role != identity.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCodec_RefreshCarriesRotationID(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := codec.IssueRefresh(testPrincipal(), "rot-123", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	claims, err := codec.VerifyRefresh(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.RotationID != "rot-123" {
		t.Fatalf("rotation id: got %q", claims.RotationID)
	}
}

func TestCodec_SecretsAreIndependent(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()

	// A refresh token must not verify as an access token, and vice versa.
	refreshTok, _, err := codec.IssueRefresh(testPrincipal(), "rot-1", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := codec.VerifyAccess(refreshTok, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("refresh-as-access: got %v, want ErrBadSignature", err)
	}

	accessTok, _, err := codec.IssueAccess(testPrincipal(), now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.VerifyRefresh(accessTok, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("access-as-refresh: got %v, want ErrBadSignature", err)
	}
}

func TestCodec_ExpiredRefreshStillYieldsClaims(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := codec.IssueRefresh(testPrincipal(), "rot-exp", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	late := exp.Add(time.Minute)
	claims, err := codec.VerifyRefresh(tok, late)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
	if claims.RotationID != "rot-exp" {
		t.Fatalf("expired token should still expose rotation id, got %q", claims.RotationID)
	}
}

func TestCodec_RefreshWithoutRotationID(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := codec.IssueRefresh(testPrincipal(), "", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := codec.VerifyRefresh(tok, now); !errors.Is(err, ErrMissingRotationID) {
		t.Fatalf("got %v, want ErrMissingRotationID", err)
	}
}

func TestCodec_TamperedToken(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := codec.IssueAccess(testPrincipal(), now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	flip := "A"
	if strings.HasSuffix(tok, "A") {
		flip = "B"
	}
	tampered := tok[:len(tok)-1] + flip
	if _, err := codec.VerifyAccess(tampered, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}

	if _, err := codec.VerifyAccess("", now); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("got %v, want ErrTokenMissing", err)
	}
}

func TestCodec_ClockSkewTolerance(t *testing.T) {
	cfg := testConfig()
	cfg.ClockSkew = 30 * time.Second

	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := codec.IssueAccess(testPrincipal(), now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Just past expiry but within the skew window.
	if _, err := codec.VerifyAccess(tok, exp.Add(10*time.Second)); err != nil {
		t.Fatalf("within skew: %v", err)
	}
	if _, err := codec.VerifyAccess(tok, exp.Add(time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("past skew: got %v, want ErrTokenExpired", err)
	}
}
