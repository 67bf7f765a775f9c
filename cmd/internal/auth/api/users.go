package authapi

import (
	"net/http"
	"strings"
	"time"

	"inkwell/cmd/identity"
)

// Admin user management: list users, create users with an explicit role,
// change a role, reset a password. Every handler here requires the admin role
// on top of the gate's token check.

func (h *Handler) adminFrom(w http.ResponseWriter, r *http.Request) bool {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if p.Role != identity.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin_only", "admin role required")
		return false
	}
	return true
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.adminFrom(w, r) {
		return
	}

	ctx := r.Context()
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		h.writeIdentityError(w, r, "users.list.fail", err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: out})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.adminFrom(w, r) {
		return
	}

	var req createUserRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	role := identity.Role(strings.TrimSpace(req.Role))
	if role == "" {
		role = identity.RoleUser
	}
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}

	ctx := r.Context()
	user, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Role:     role,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "username_taken", "username already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid username or password")
		default:
			h.writeIdentityError(w, r, "users.create.fail", err)
		}
		return
	}

	h.log.InfoContext(ctx, "users.created", "user_id", user.ID, "role", string(user.Role))
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	if !h.adminFrom(w, r) {
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	user, err := h.users.SetRole(ctx, r.PathValue("id"), identity.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", "user not found")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		default:
			h.writeIdentityError(w, r, "users.set_role.fail", err)
		}
		return
	}

	h.log.InfoContext(ctx, "users.role_changed", "user_id", user.ID, "role", string(user.Role))
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleSetUserPassword(w http.ResponseWriter, r *http.Request) {
	if !h.adminFrom(w, r) {
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	userID := r.PathValue("id")

	if err := h.users.SetPassword(ctx, userID, req.Password); err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", "user not found")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid password")
		default:
			h.writeIdentityError(w, r, "users.set_password.fail", err)
		}
		return
	}

	// The old credential may be compromised; retire every open session.
	if err := h.sessions.RevokeAll(ctx, userID); err != nil {
		h.log.ErrorContext(ctx, "users.set_password.revoke_all_failed", "user_id", userID, "error", err)
	}

	h.log.InfoContext(ctx, "users.password_reset", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// writeIdentityError handles the residual store failures shared by the user
// management handlers: 503 when storage is down, 500 otherwise.
func (h *Handler) writeIdentityError(w http.ResponseWriter, r *http.Request, event string, err error) {
	ctx := r.Context()
	if identity.IsUnavailable(err) {
		h.log.WarnContext(ctx, event, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
		return
	}
	h.log.ErrorContext(ctx, event, "error", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}
