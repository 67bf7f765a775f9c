package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"inkwell/cmd/identity"
	"inkwell/cmd/security/token"
)

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(testConfig(), store, nil, NewMetrics(nil))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func recordFor(t *testing.T, svc *Service, store *MemoryStore, refreshToken string) Record {
	t.Helper()
	claims, err := svc.codec.VerifyRefresh(refreshToken, svc.now())
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	rec, err := store.Lookup(context.Background(), token.HashRotationIDHex(claims.RotationID))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return rec
}

func TestService_IssueAndRefresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	client := ClientContext{IP: "203.0.113.7", UserAgent: "test-agent"}
	first, err := svc.IssueSession(ctx, testPrincipal(), client)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if first.AccessToken == "" || first.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", first)
	}

	rec := recordFor(t, svc, store, first.RefreshToken)
	if !rec.Active() {
		t.Fatalf("fresh session should be active")
	}
	if rec.CreatedByIP == nil || *rec.CreatedByIP != client.IP {
		t.Fatalf("client IP not recorded: %+v", rec)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken, client)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	// The old record is now retired and linked to its replacement.
	old := recordFor(t, svc, store, first.RefreshToken)
	if old.Active() || old.ReplacedByHash == nil {
		t.Fatalf("old record not rotated: %+v", old)
	}
	if next := recordFor(t, svc, store, second.RefreshToken); !next.Active() {
		t.Fatalf("new record should be active")
	}
}

func TestService_ReuseRevokesEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	first, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken, ClientContext{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Presenting the already-rotated token again is reuse.
	if _, err := svc.Refresh(ctx, first.RefreshToken, ClientContext{}); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("got %v, want ErrReuseDetected", err)
	}

	// The sweep must also have revoked the legitimate replacement.
	if rec := recordFor(t, svc, store, second.RefreshToken); rec.Active() {
		t.Fatalf("replacement survived the reuse sweep: %+v", rec)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken, ClientContext{}); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("got %v, want ErrReuseDetected for swept session", err)
	}
}

func TestService_ExpiredTokenRetiresSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// Jump past the refresh TTL (and past skew tolerance).
	svc.now = func() time.Time { return issued.RefreshExpiresAt.Add(time.Hour) }

	if _, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("got %v, want ErrSessionExpired", err)
	}
	if rec := recordFor(t, svc, store, issued.RefreshToken); rec.RevokedAt == nil {
		t.Fatalf("expired session should have been revoked")
	}
}

func TestService_ExpiredRecordWithinSkew(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// Inside skew the token still verifies, but the stored record is past
	// its expiry and must win.
	svc.now = func() time.Time { return issued.RefreshExpiresAt.Add(10 * time.Second) }

	if _, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("got %v, want ErrSessionExpired", err)
	}
}

func TestService_UnknownSession(t *testing.T) {
	ctx := context.Background()

	// Token minted by one deployment, presented to another with an empty store.
	minter := newTestService(t, NewMemoryStore())
	issued, err := minter.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	svc := newTestService(t, NewMemoryStore())
	if _, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("got %v, want ErrUnknownSession", err)
	}
}

func TestService_ForgedToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	if _, err := svc.Refresh(ctx, "not-a-token", ClientContext{}); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestService_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if rec := recordFor(t, svc, store, issued.RefreshToken); rec.RevokedAt == nil {
		t.Fatalf("logout should revoke the session")
	}

	// Second logout, and logout with garbage, are both no-ops.
	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("repeat Logout: %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("garbage Logout: %v", err)
	}

	// A logged-out token that gets presented for refresh is reuse.
	if _, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{}); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("got %v, want ErrReuseDetected", err)
	}
}

func TestService_RevokeAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)

	a, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	b, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	other, err := svc.IssueSession(ctx, Principal{UserID: "someone-else", Role: identity.RoleUser}, ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if err := svc.RevokeAll(ctx, testPrincipal().UserID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if rec := recordFor(t, svc, store, tok); rec.RevokedAt == nil {
			t.Fatalf("session survived RevokeAll")
		}
	}
	if rec := recordFor(t, svc, store, other.RefreshToken); !rec.Active() {
		t.Fatalf("other user's session must be untouched")
	}
}

// contestedStore loses every rotation, as when another process rotates the
// same token first.
type contestedStore struct {
	*MemoryStore
}

func (s *contestedStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error {
	return ErrSessionNotActive
}

func TestService_RotateRaceLoserIsReuse(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	svc := newTestService(t, &contestedStore{MemoryStore: mem})

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// The record still looks active at lookup time, but the conditional
	// rotate reports it was taken by someone else.
	if _, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{}); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("got %v, want ErrReuseDetected", err)
	}

	// Losing the race triggers the full sweep.
	if rec := recordFor(t, svc, mem, issued.RefreshToken); rec.RevokedAt == nil {
		t.Fatalf("race loser must sweep the user's sessions: %+v", rec)
	}
}

// gatedStore holds rotations open until released and counts them.
type gatedStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error {
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	<-s.release
	return s.MemoryStore.Rotate(ctx, now, oldHash, next)
}

func TestService_ConcurrentRefreshShareOneRotation(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := newTestService(t, store)

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	type result struct {
		out Issued
		err error
	}
	results := make(chan result, 2)
	refresh := func() {
		out, err := svc.Refresh(ctx, issued.RefreshToken, ClientContext{})
		results <- result{out, err}
	}

	go refresh()
	<-store.entered // first caller is inside the rotation
	go refresh()
	time.Sleep(50 * time.Millisecond) // second caller joins the in-flight rotation
	close(store.release)

	a, b := <-results, <-results
	if a.err != nil || b.err != nil {
		t.Fatalf("refresh errors: %v / %v", a.err, b.err)
	}
	if a.out.RefreshToken != b.out.RefreshToken || a.out.AccessToken != b.out.AccessToken {
		t.Fatalf("concurrent refreshes must share one result")
	}
	if n := store.calls.Load(); n != 1 {
		t.Fatalf("Rotate called %d times, want 1", n)
	}
}

func TestService_VerifyAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	issued, err := svc.IssueSession(ctx, testPrincipal(), ClientContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	claims, err := svc.VerifyAccess(issued.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != testPrincipal().UserID {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	svc.now = func() time.Time { return issued.AccessExpiresAt.Add(time.Hour) }
	if _, err := svc.VerifyAccess(issued.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}
