package identity

import (
	"context"
	"time"
)

// Role is the global role attached to a user. Admin is an ownership override
// everywhere in the access model; there is no finer-grained role hierarchy.
type Role string

const (
	// RoleAdmin grants owner-level access to every resource.
	RoleAdmin Role = "admin"
	// RoleUser is the default role.
	RoleUser Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User is Inkwell's canonical security principal.
type User struct {
	ID       string
	Username string
	Role     Role

	CreatedAt time.Time
}

// UserAuth couples a user with its stored credential for login verification.
// IMPORTANT: PasswordHash must never leave the auth boundary (no JSON tags on purpose).
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a user registration request.
type CreateUserInput struct {
	Username string
	Password string
	Role     Role
	Now      time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser hashes the password and inserts the user.
	// Returns ConflictError{Field: "username"} when the normalized username is taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetAuthByUsername loads a user plus credential by normalized username.
	GetAuthByUsername(ctx context.Context, username string) (UserAuth, error)

	// GetByID loads a user by id.
	GetByID(ctx context.Context, id string) (User, error)

	// ListUsers returns every user ordered by creation time. Admin surface.
	ListUsers(ctx context.Context) ([]User, error)

	// SetRole replaces a user's global role and returns the updated user.
	SetRole(ctx context.Context, id string, role Role) (User, error)

	// SetPassword re-hashes and replaces a user's stored credential.
	SetPassword(ctx context.Context, id, password string) error
}
