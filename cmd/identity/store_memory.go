package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a dev-only fallback when DB is not configured.
// It is also the store used by unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]UserAuth
	byNorm map[string]string // username_norm -> id
}

// NewMemoryStore constructs an in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]UserAuth),
		byNorm: make(map[string]string),
	}
}

// CreateUser creates a new user with its hashed credential.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, invalid(op, "username is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return User{}, invalid(op, "password is required")
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, invalid(op, "unknown role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, invalid(op, err.Error())
	}

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[norm]; taken {
		return User{}, ConflictError{Op: op, Field: "username"}
	}

	u := User{ID: userID, Username: username, Role: role, CreatedAt: now}
	s.byID[userID] = UserAuth{User: u, PasswordHash: pwHash}
	s.byNorm[norm] = userID

	return u, nil
}

// GetAuthByUsername loads a user plus credential by normalized username.
func (s *MemoryStore) GetAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.GetAuthByUsername"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return s.byID[id], nil
}

// ListUsers returns every user ordered by creation time.
func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.byID))
	for _, ua := range s.byID {
		out = append(out, ua.User)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SetRole replaces a user's global role.
func (s *MemoryStore) SetRole(ctx context.Context, id string, role Role) (User, error) {
	const op = "identity.SetRole"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, invalid(op, "unknown role")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[id]
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	ua.User.Role = role
	s.byID[id] = ua
	return ua.User, nil
}

// SetPassword re-hashes and replaces a user's stored credential.
func (s *MemoryStore) SetPassword(ctx context.Context, id, password string) error {
	const op = "identity.SetPassword"

	if err := ctx.Err(); err != nil {
		return err
	}

	pwHash, err := HashPassword(password, DefaultArgon2idParams())
	if err != nil {
		return invalid(op, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[id]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	ua.PasswordHash = pwHash
	s.byID[id] = ua
	return nil
}

// GetByID loads a user by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[id]
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return ua.User, nil
}
