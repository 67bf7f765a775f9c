package session

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

// PostgresStore implements Store using PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by this store (default: "inkwell").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("session: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed session store.
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
		return nil, errors.New("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_sessions"}.Sanitize()
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

// Create inserts a new refresh-session row.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     token_hash, user_id, issued_at, expires_at, revoked_at,
		     replaced_by_token_hash, created_by_ip, user_agent
		 ) VALUES ($1, $2, $3, $4, NULL, NULL, $5, $6)`,
		rec.TokenHash, rec.UserID, rec.IssuedAt, rec.ExpiresAt, rec.CreatedByIP, rec.UserAgent,
	)
	return storeErr(err)
}

// Lookup loads a refresh-session row by rotation-id digest.
func (s *PostgresStore) Lookup(ctx context.Context, tokenHash string) (Record, error) {
	var rec Record

	err := s.pool.QueryRow(ctx,
		`SELECT token_hash, user_id, issued_at, expires_at, revoked_at,
		        replaced_by_token_hash, created_by_ip, user_agent
		   FROM `+s.table()+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&rec.TokenHash,
		&rec.UserID,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
		&rec.ReplacedByHash,
		&rec.CreatedByIP,
		&rec.UserAgent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrUnknownSession
	}
	if err != nil {
		return Record{}, storeErr(err)
	}

	return rec, nil
}

// Rotate revokes the old row and inserts the replacement inside one transaction.
//
// The old row is locked with SELECT ... FOR UPDATE and re-checked under the
// lock, so only one of two concurrent rotations of the same token can commit;
// the loser observes a non-active row and gets ErrSessionNotActive.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Record) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := s.table()

	var (
		revokedAt  *time.Time
		replacedBy *string
	)
	err = tx.QueryRow(ctx,
		`SELECT revoked_at, replaced_by_token_hash
		   FROM `+table+`
		  WHERE token_hash = $1
		    FOR UPDATE`,
		oldHash,
	).Scan(&revokedAt, &replacedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownSession
	}
	if err != nil {
		return storeErr(err)
	}

	if revokedAt != nil || replacedBy != nil {
		return ErrSessionNotActive
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+table+`
		    SET revoked_at = $2, replaced_by_token_hash = $3
		  WHERE token_hash = $1`,
		oldHash, now, next.TokenHash,
	); err != nil {
		return storeErr(err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+table+` (
		     token_hash, user_id, issued_at, expires_at, revoked_at,
		     replaced_by_token_hash, created_by_ip, user_agent
		 ) VALUES ($1, $2, $3, $4, NULL, NULL, $5, $6)`,
		next.TokenHash, next.UserID, next.IssuedAt, next.ExpiresAt, next.CreatedByIP, next.UserAgent,
	); err != nil {
		return storeErr(err)
	}

	return storeErr(tx.Commit(ctx))
}

// Revoke revokes a single row (idempotent; keeps the earliest revocation time).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, tokenHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked_at = COALESCE(revoked_at, $2)
		  WHERE token_hash = $1`,
		tokenHash, now,
	)
	return storeErr(err)
}

// RevokeAll revokes all active rows for a user (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked_at = $2
		  WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now,
	)
	return storeErr(err)
}
