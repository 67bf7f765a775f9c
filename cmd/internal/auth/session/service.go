package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"inkwell/cmd/security/token"
)

// Issued is one minted token pair.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// ClientContext carries request metadata recorded on the session for audit.
type ClientContext struct {
	IP        string
	UserAgent string
}

// Service implements the session lifecycle: issue, rotate, revoke.
//
// Refresh tokens are single-use. Each rotation revokes the presented token and
// links it to its replacement, so presenting an already-rotated token is
// unambiguous evidence of reuse and revokes every session of that user.
type Service struct {
	codec   *Codec
	store   Store
	log     *slog.Logger
	metrics *Metrics

	now   func() time.Time
	group singleflight.Group
}

// NewService builds a session Service from validated config.
func NewService(cfg Config, store Store, log *slog.Logger, metrics *Metrics) (*Service, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		codec:   codec,
		store:   store,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// IssueSession mints a fresh token pair for p and persists the refresh session.
// Called after credential verification (login, register).
func (s *Service) IssueSession(ctx context.Context, p Principal, client ClientContext) (Issued, error) {
	now := s.now()

	rotationID := uuid.NewString()
	refreshTok, refreshExp, err := s.codec.IssueRefresh(p, rotationID, now)
	if err != nil {
		return Issued{}, err
	}
	accessTok, accessExp, err := s.codec.IssueAccess(p, now)
	if err != nil {
		return Issued{}, err
	}

	rec := Record{
		TokenHash:   token.HashRotationIDHex(rotationID),
		UserID:      p.UserID,
		IssuedAt:    now,
		ExpiresAt:   refreshExp,
		CreatedByIP: optional(client.IP),
		UserAgent:   optional(client.UserAgent),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Issued{}, err
	}

	s.metrics.SessionsIssued.Inc()
	s.log.DebugContext(ctx, "auth.session.issued", "user_id", p.UserID)

	return Issued{
		AccessToken:      accessTok,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshTok,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// underlying session.
//
// Outcomes:
//   - bad/forged token               -> ErrBadSignature (no state change)
//   - expired token, known session   -> that session is revoked, ErrSessionExpired
//   - unknown rotation id            -> ErrUnknownSession
//   - rotated/revoked token reused   -> every session of the user is revoked,
//     ErrReuseDetected
//
// Concurrent refreshes of the same token inside one process are collapsed via
// singleflight and share a single result; across processes the store's
// conditional rotate picks one winner and the loser lands on the reuse path.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientContext) (Issued, error) {
	now := s.now()

	claims, err := s.codec.VerifyRefresh(refreshToken, now)
	if errors.Is(err, ErrTokenExpired) {
		// Signature was valid; retire the stored session it points at.
		hash := token.HashRotationIDHex(claims.RotationID)
		if revErr := s.store.Revoke(ctx, now, hash); revErr != nil {
			s.log.ErrorContext(ctx, "auth.refresh.revoke_expired_failed", "error", revErr)
		}
		s.metrics.Revocations.WithLabelValues(revokeReasonExpired).Inc()
		return Issued{}, ErrSessionExpired
	}
	if err != nil {
		return Issued{}, err
	}

	hash := token.HashRotationIDHex(claims.RotationID)

	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.rotate(ctx, now, hash, claims, client)
	})
	if err != nil {
		return Issued{}, err
	}
	return v.(Issued), nil
}

func (s *Service) rotate(ctx context.Context, now time.Time, hash string, claims RefreshClaims, client ClientContext) (Issued, error) {
	rec, err := s.store.Lookup(ctx, hash)
	if err != nil {
		return Issued{}, err
	}
	if rec.UserID != claims.UserID {
		return Issued{}, ErrUnknownSession
	}

	if !rec.Active() {
		return Issued{}, s.onReuse(ctx, now, rec.UserID)
	}
	if now.After(rec.ExpiresAt) {
		if err := s.store.Revoke(ctx, now, hash); err != nil {
			return Issued{}, err
		}
		s.metrics.Revocations.WithLabelValues(revokeReasonExpired).Inc()
		return Issued{}, ErrSessionExpired
	}

	rotationID := uuid.NewString()
	refreshTok, refreshExp, err := s.codec.IssueRefresh(claims.Principal, rotationID, now)
	if err != nil {
		return Issued{}, err
	}
	accessTok, accessExp, err := s.codec.IssueAccess(claims.Principal, now)
	if err != nil {
		return Issued{}, err
	}

	next := Record{
		TokenHash:   token.HashRotationIDHex(rotationID),
		UserID:      rec.UserID,
		IssuedAt:    now,
		ExpiresAt:   refreshExp,
		CreatedByIP: optional(client.IP),
		UserAgent:   optional(client.UserAgent),
	}
	switch err := s.store.Rotate(ctx, now, hash, next); {
	case errors.Is(err, ErrSessionNotActive):
		// Lost a cross-process race: someone else already rotated this token.
		return Issued{}, s.onReuse(ctx, now, rec.UserID)
	case err != nil:
		return Issued{}, err
	}

	s.metrics.Rotations.Inc()
	s.log.DebugContext(ctx, "auth.refresh.rotated", "user_id", rec.UserID)

	return Issued{
		AccessToken:      accessTok,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshTok,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) onReuse(ctx context.Context, now time.Time, userID string) error {
	s.log.WarnContext(ctx, "auth.refresh.reuse_detected", "user_id", userID)
	s.metrics.ReuseDetected.Inc()
	s.metrics.Revocations.WithLabelValues(revokeReasonReuse).Inc()

	if err := s.store.RevokeAll(ctx, now, userID); err != nil {
		// The caller denies the request either way; the failed sweep is the
		// operational emergency worth shouting about.
		s.log.ErrorContext(ctx, "auth.refresh.revoke_all_failed", "user_id", userID, "error", err)
	}
	return ErrReuseDetected
}

// Logout retires the session behind refreshToken. Best-effort and idempotent:
// an invalid, expired, or unknown token is not an error, since the client's
// goal (no usable session) already holds.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	now := s.now()

	claims, err := s.codec.VerifyRefresh(refreshToken, now)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return nil
	}

	hash := token.HashRotationIDHex(claims.RotationID)
	if err := s.store.Revoke(ctx, now, hash); err != nil {
		return err
	}
	s.metrics.Revocations.WithLabelValues(revokeReasonLogout).Inc()
	s.log.DebugContext(ctx, "auth.session.logout", "user_id", claims.UserID)
	return nil
}

// RevokeAll revokes every session of userID (logout-everywhere, admin action).
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if err := s.store.RevokeAll(ctx, s.now(), userID); err != nil {
		return err
	}
	s.metrics.Revocations.WithLabelValues(revokeReasonManual).Inc()
	s.log.InfoContext(ctx, "auth.session.revoke_all", "user_id", userID)
	return nil
}

// VerifyAccess validates an access token without touching the store.
func (s *Service) VerifyAccess(tokenStr string) (AccessClaims, error) {
	return s.codec.VerifyAccess(tokenStr, s.now())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
