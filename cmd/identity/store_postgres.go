package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "inkwell").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "inkwell",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser creates a new user with its hashed credential.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, password_hash, role, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		userID,
		username,
		NormalizeUsername(username),
		pwHash,
		string(role),
		now,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		return User{}, storeErr(err)
	}

	return User{
		ID:        userID,
		Username:  username,
		Role:      role,
		CreatedAt: now,
	}, nil
}

// GetAuthByUsername loads a user and its password hash by normalized username.
func (s *PostgresStore) GetAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.GetAuthByUsername"

	if s == nil || s.pool == nil {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	users := pgIdent(s.schema, "users")

	var (
		out  UserAuth
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role, created_at
		   FROM `+users+`
		  WHERE username_norm = $1`,
		NormalizeUsername(username),
	).Scan(&out.User.ID, &out.User.Username, &out.PasswordHash, &role, &out.User.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	if err != nil {
		return UserAuth{}, storeErr(err)
	}

	out.User.Role = Role(role)
	return out, nil
}

// GetByID loads a user by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	users := pgIdent(s.schema, "users")

	var (
		out  User
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, role, created_at
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.Username, &role, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	if err != nil {
		return User{}, storeErr(err)
	}

	out.Role = Role(role)
	return out, nil
}

// ListUsers returns every user ordered by creation time.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	const op = "identity.ListUsers"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, role, created_at
		   FROM `+pgIdent(s.schema, "users")+`
		  ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		u.Role = Role(role)
		out = append(out, u)
	}
	return out, storeErr(rows.Err())
}

// SetRole replaces a user's global role.
func (s *PostgresStore) SetRole(ctx context.Context, id string, role Role) (User, error) {
	const op = "identity.SetRole"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if !role.Valid() {
		return User{}, invalid(op, "unknown role")
	}

	var (
		out     User
		roleStr string
	)
	err := s.pool.QueryRow(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET role = $2
		  WHERE id = $1
		  RETURNING id, username, role, created_at`,
		id, string(role),
	).Scan(&out.ID, &out.Username, &roleStr, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	if err != nil {
		return User{}, storeErr(err)
	}

	out.Role = Role(roleStr)
	return out, nil
}

// SetPassword re-hashes and replaces a user's stored credential.
func (s *PostgresStore) SetPassword(ctx context.Context, id, password string) error {
	const op = "identity.SetPassword"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	pwHash, err := HashPassword(password, DefaultArgon2idParams())
	if err != nil {
		return invalid(op, err.Error())
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET password_hash = $2
		  WHERE id = $1`,
		id, pwHash,
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return nil
}

func pgIdent(schema, table string) string {
	return fmt.Sprintf("%q.%q", schema, table)
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// storeErr maps connectivity failures (query timeout, unreachable server,
// broken connection) onto ErrUnavailable; everything else passes through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
