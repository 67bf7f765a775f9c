package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/auth/session"
)

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service

	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("authapi: nil identity store")
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux. The session endpoints
// authenticate by other means; /me and everything below /users sit behind
// the gate, and /users additionally requires the admin role.
func (h *Handler) Register(mux *http.ServeMux, gate *Gate) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("POST /auth/logout_all", gate.Require(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("GET /me", gate.Require(http.HandlerFunc(h.handleMe)))

	mux.Handle("GET /users", gate.Require(http.HandlerFunc(h.handleListUsers)))
	mux.Handle("POST /users", gate.Require(http.HandlerFunc(h.handleCreateUser)))
	mux.Handle("PUT /users/{id}/role", gate.Require(http.HandlerFunc(h.handleSetUserRole)))
	mux.Handle("PUT /users/{id}/password", gate.Require(http.HandlerFunc(h.handleSetUserPassword)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username: username,
		Password: req.Password,
		Role:     identity.RoleUser,
		Now:      now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "username_taken", "username already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid username or password")
		case identity.IsUnavailable(err):
			h.log.WarnContext(ctx, "auth.register.unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
		default:
			h.log.ErrorContext(ctx, "auth.register.fail", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// Registration doubles as login: the new user gets a session right away.
	h.issueAndRespond(w, r, user, http.StatusCreated)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	password := req.Password
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()

	auth, err := h.users.GetAuthByUsername(ctx, username)
	if identity.IsUnavailable(err) {
		h.log.WarnContext(ctx, "auth.login.unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
		return
	}
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(password, h.dummyHash)
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	ok, err := identity.VerifyPassword(password, auth.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	h.issueAndRespond(w, r, auth.User, http.StatusOK)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshTokenFromCookie(r)
	if !ok {
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing refresh cookie")
		return
	}

	ctx := r.Context()
	issued, err := h.sessions.Refresh(ctx, refreshToken, h.clientContext(r))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnavailable):
			// Storage outage, not an auth failure: keep the cookie so the
			// client can retry.
			h.log.WarnContext(ctx, "auth.refresh.unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
		case errors.Is(err, session.ErrReuseDetected):
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case errors.Is(err, session.ErrSessionExpired),
			errors.Is(err, session.ErrUnknownSession),
			errors.Is(err, session.ErrTokenExpired),
			errors.Is(err, session.ErrBadSignature),
			errors.Is(err, session.ErrMissingRotationID):
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "session_not_active", "session not active")
		default:
			h.clearRefreshCookie(w)
			h.log.ErrorContext(ctx, "auth.refresh.fail", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, toSessionResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if refreshToken, ok := h.refreshTokenFromCookie(r); ok {
		if err := h.sessions.Logout(ctx, refreshToken); err != nil {
			h.log.ErrorContext(ctx, "auth.logout.fail", "error", err)
		}
	}

	// Logout always succeeds from the client's perspective.
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll revokes every refresh session of the authenticated user
// (logout everywhere). The caller's access token stays valid until expiry;
// AccessTTL bounds the exposure.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	ctx := r.Context()
	if err := h.sessions.RevokeAll(ctx, p.UserID); err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			h.log.WarnContext(ctx, "auth.logout_all.unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
			return
		}
		h.log.ErrorContext(ctx, "auth.logout_all.fail", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	ctx := r.Context()
	u, err := h.users.GetByID(ctx, p.UserID)
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
		case identity.IsUnavailable(err):
			h.log.WarnContext(ctx, "auth.me.unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
		default:
			h.log.ErrorContext(ctx, "auth.me.fail", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) issueAndRespond(w http.ResponseWriter, r *http.Request, user identity.User, status int) {
	ctx := r.Context()

	issued, err := h.sessions.IssueSession(ctx, session.Principal{
		UserID: user.ID,
		Role:   user.Role,
	}, h.clientContext(r))
	if err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			h.log.WarnContext(ctx, "auth.issue_session.unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
			return
		}
		h.log.ErrorContext(ctx, "auth.issue_session.fail", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt)
	writeJSON(w, status, authResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) clientContext(r *http.Request) session.ClientContext {
	return session.ClientContext{
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip.String()
		}
	}
	return ""
}
