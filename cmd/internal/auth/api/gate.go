package authapi

import (
	"context"
	"net/http"
	"strings"

	"inkwell/cmd/internal/auth/session"
)

type principalKey struct{}

// Gate authenticates requests with a bearer access token. Verification is
// stateless; no store is consulted on the hot path.
type Gate struct {
	sessions *session.Service
	cfg      Config
}

// NewGate builds the authentication middleware.
func NewGate(sessions *session.Service, cfg Config) *Gate {
	return &Gate{sessions: sessions, cfg: cfg}
}

// Authenticate extracts and verifies the bearer token on r.
func (g *Gate) Authenticate(r *http.Request) (session.Principal, error) {
	tok := bearerToken(r)
	if tok == "" {
		return session.Principal{}, session.ErrTokenMissing
	}
	claims, err := g.sessions.VerifyAccess(tok)
	if err != nil {
		return session.Principal{}, err
	}
	return claims.Principal, nil
}

// Require wraps next, rejecting unauthenticated requests with 401. The 401
// response also clears the refresh cookie so stale web sessions drain out.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Authenticate(r)
		if err != nil {
			g.reject(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (g *Gate) reject(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.RefreshCookieName,
		Value:    "",
		Path:     g.cfg.CookiePath,
		Domain:   g.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: g.cfg.CookieSameSite,
	})
	writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(session.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
