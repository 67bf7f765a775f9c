package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/auth/session"
)

func newAdminMux(t *testing.T) (*http.ServeMux, *identity.MemoryStore) {
	t.Helper()

	users := identity.NewMemoryStore()
	mux := newTestMuxWithStores(t, users, session.NewMemoryStore())

	if _, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Username: "root",
		Password: "rootpassword",
		Role:     identity.RoleAdmin,
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return mux, users
}

func loginToken(t *testing.T, mux *http.ServeMux, username, password string) string {
	t.Helper()
	rec := postJSON(t, mux, "/auth/login", loginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %q: %d, body %s", username, rec.Code, rec.Body)
	}
	return decodeAuth(t, rec).Session.AccessToken
}

func encodeBody(t *testing.T, body any) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	return &buf
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, encodeBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestUsersRequireAdmin(t *testing.T) {
	mux, _ := newAdminMux(t)

	postJSON(t, mux, "/auth/register", registerRequest{Username: "ada", Password: "hunter2hunter2"})
	userToken := loginToken(t, mux, "ada", "hunter2hunter2")

	calls := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/users", nil},
		{http.MethodPost, "/users", createUserRequest{Username: "x", Password: "hunter2hunter2"}},
		{http.MethodPut, "/users/some-id/role", updateRoleRequest{Role: "admin"}},
		{http.MethodPut, "/users/some-id/password", updatePasswordRequest{Password: "hunter2hunter2"}},
	}
	for _, c := range calls {
		if rec := doJSON(t, mux, c.method, c.path, userToken, c.body); rec.Code != http.StatusForbidden || errorCode(t, rec) != "admin_only" {
			t.Fatalf("%s %s as user: %d, body %s", c.method, c.path, rec.Code, rec.Body)
		}
		if rec := doJSON(t, mux, c.method, c.path, "", c.body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s anonymous: %d", c.method, c.path, rec.Code)
		}
	}
}

func TestUsersAdminSurface(t *testing.T) {
	mux, _ := newAdminMux(t)
	admin := loginToken(t, mux, "root", "rootpassword")

	postJSON(t, mux, "/auth/register", registerRequest{Username: "ada", Password: "hunter2hunter2"})

	// List shows the seeded admin and the self-registered user.
	rec := doJSON(t, mux, http.MethodGet, "/users", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: %d, body %s", rec.Code, rec.Body)
	}
	var list usersResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Users) != 2 {
		t.Fatalf("want 2 users, got %+v", list.Users)
	}

	// Create a second admin directly.
	rec = doJSON(t, mux, http.MethodPost, "/users", admin, createUserRequest{
		Username: "ops", Password: "hunter2hunter2", Role: "admin",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d, body %s", rec.Code, rec.Body)
	}
	var created userResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Role != string(identity.RoleAdmin) {
		t.Fatalf("created role: %+v", created)
	}
	if tok := loginToken(t, mux, "ops", "hunter2hunter2"); tok == "" {
		t.Fatalf("created user cannot log in")
	}

	// Unknown roles are rejected up front.
	rec = doJSON(t, mux, http.MethodPost, "/users", admin, createUserRequest{
		Username: "oops", Password: "hunter2hunter2", Role: "superuser",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: %d", rec.Code)
	}
}

func TestUsersPromoteAndResetPassword(t *testing.T) {
	mux, _ := newAdminMux(t)
	admin := loginToken(t, mux, "root", "rootpassword")

	reg := postJSON(t, mux, "/auth/register", registerRequest{Username: "ada", Password: "hunter2hunter2"})
	adaID := decodeAuth(t, reg).User.ID
	adaCookie := refreshCookie(t, reg)

	// Promote, then verify the next login carries the new role.
	rec := doJSON(t, mux, http.MethodPut, "/users/"+adaID+"/role", admin, updateRoleRequest{Role: "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote: %d, body %s", rec.Code, rec.Body)
	}
	var promoted userResponse
	if err := json.NewDecoder(rec.Body).Decode(&promoted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if promoted.Role != string(identity.RoleAdmin) {
		t.Fatalf("promoted: %+v", promoted)
	}

	rec = postJSON(t, mux, "/auth/login", loginRequest{Username: "ada", Password: "hunter2hunter2"})
	if out := decodeAuth(t, rec); out.User.Role != string(identity.RoleAdmin) {
		t.Fatalf("role after promote: %+v", out.User)
	}

	// Reset the password: old credential dies, open sessions are swept.
	rec = doJSON(t, mux, http.MethodPut, "/users/"+adaID+"/password", admin, updatePasswordRequest{Password: "freshpassword"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset password: %d, body %s", rec.Code, rec.Body)
	}
	rec = postJSON(t, mux, "/auth/login", loginRequest{Username: "ada", Password: "hunter2hunter2"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password after reset: %d", rec.Code)
	}
	if tok := loginToken(t, mux, "ada", "freshpassword"); tok == "" {
		t.Fatalf("new password rejected")
	}
	if rec := postJSON(t, mux, "/auth/refresh", nil, adaCookie); rec.Code != http.StatusUnauthorized {
		t.Fatalf("pre-reset session survived: %d", rec.Code)
	}

	// Unknown user ids are a 404.
	rec = doJSON(t, mux, http.MethodPut, "/users/no-such-id/role", admin, updateRoleRequest{Role: "user"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost promote: %d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodPut, "/users/no-such-id/password", admin, updatePasswordRequest{Password: "freshpassword"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost reset: %d", rec.Code)
	}
}
