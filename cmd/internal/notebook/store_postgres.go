package notebook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkwell/cmd/internal/access"
)

// PostgresStore implements Store on PostgreSQL.
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
			return errors.New("notebook: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("notebook: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed content store.
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
			return nil, storeErr(err)
		}
	}
	if st.pool == nil {
		return nil, errors.New("notebook: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
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

// --- notebooks ---

func (s *PostgresStore) CreateNotebook(ctx context.Context, nb Notebook) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("notebooks")+` (id, owner_id, title, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		nb.ID, nb.OwnerID, nb.Title, nb.Description, nb.CreatedAt, nb.UpdatedAt,
	)
	return storeErr(err)
}

func (s *PostgresStore) GetNotebook(ctx context.Context, id string) (Notebook, error) {
	var nb Notebook
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, description, created_at, updated_at
		   FROM `+s.table("notebooks")+`
		  WHERE id = $1`,
		id,
	).Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.Description, &nb.CreatedAt, &nb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notebook{}, ErrNotFound
	}
	if err != nil {
		return Notebook{}, storeErr(err)
	}
	return nb, nil
}

func (s *PostgresStore) ListNotebooks(ctx context.Context, userID string) ([]Notebook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT n.id, n.owner_id, n.title, n.description, n.created_at, n.updated_at
		   FROM `+s.table("notebooks")+` n
		  WHERE n.owner_id = $1
		     OR EXISTS (
		        SELECT 1 FROM `+s.table("notebook_shares")+` sh
		         WHERE sh.notebook_id = n.id AND sh.user_id = $1)
		  ORDER BY n.created_at`,
		userID,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Notebook
	for rows.Next() {
		var nb Notebook
		if err := rows.Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.Description, &nb.CreatedAt, &nb.UpdatedAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, nb)
	}
	return out, storeErr(rows.Err())
}

func (s *PostgresStore) UpdateNotebook(ctx context.Context, nb Notebook) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("notebooks")+`
		    SET title = $2, description = $3, updated_at = $4
		  WHERE id = $1`,
		nb.ID, nb.Title, nb.Description, nb.UpdatedAt,
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteNotebook(ctx context.Context, id string) error {
	// Shares, notes, note_labels, and history cascade via FKs.
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("notebooks")+` WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- notes ---

func (s *PostgresStore) CreateNote(ctx context.Context, n Note) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table("notes")+` (id, notebook_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.NotebookID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt,
	); err != nil {
		return storeErr(err)
	}
	if err := s.replaceNoteLabels(ctx, tx, n.ID, n.LabelIDs); err != nil {
		return err
	}
	return storeErr(tx.Commit(ctx))
}

func (s *PostgresStore) GetNote(ctx context.Context, id string) (Note, error) {
	var n Note
	err := s.pool.QueryRow(ctx,
		`SELECT id, notebook_id, title, content, created_at, updated_at
		   FROM `+s.table("notes")+`
		  WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.NotebookID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, storeErr(err)
	}

	n.LabelIDs, err = s.noteLabelIDs(ctx, id)
	if err != nil {
		return Note{}, storeErr(err)
	}
	return n, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, in ListNotesInput) ([]Note, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx,
		`SELECT n.id, n.notebook_id, n.title, n.content, n.created_at, n.updated_at
		   FROM `+s.table("notes")+` n
		  WHERE n.notebook_id = $1
		    AND ($2::text[] IS NULL OR NOT EXISTS (
		        SELECT 1 FROM unnest($2::text[]) want(label_id)
		         WHERE NOT EXISTS (
		            SELECT 1 FROM `+s.table("note_labels")+` nl
		             WHERE nl.note_id = n.id AND nl.label_id = want.label_id)))
		  ORDER BY n.created_at
		  LIMIT $3 OFFSET $4`,
		in.NotebookID, labelFilter(in.LabelIDs), limit, max(in.Offset, 0),
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.NotebookID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}

	for i := range out {
		out[i].LabelIDs, err = s.noteLabelIDs(ctx, out[i].ID)
		if err != nil {
			return nil, storeErr(err)
		}
	}
	return out, nil
}

func labelFilter(ids []string) any {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func (s *PostgresStore) UpdateNote(ctx context.Context, n Note, hist *HistoryEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE `+s.table("notes")+`
		    SET title = $2, content = $3, updated_at = $4
		  WHERE id = $1`,
		n.ID, n.Title, n.Content, n.UpdatedAt,
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := s.replaceNoteLabels(ctx, tx, n.ID, n.LabelIDs); err != nil {
		return err
	}

	if hist != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+s.table("note_history")+` (id, note_id, content, edited_by, edited_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			hist.ID, hist.NoteID, hist.Content, hist.EditedBy, hist.EditedAt,
		); err != nil {
			return storeErr(err)
		}
	}

	return storeErr(tx.Commit(ctx))
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("notes")+` WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) noteLabelIDs(ctx context.Context, noteID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label_id FROM `+s.table("note_labels")+`
		  WHERE note_id = $1 ORDER BY label_id`,
		noteID,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(err)
		}
		ids = append(ids, id)
	}
	return ids, storeErr(rows.Err())
}

func (s *PostgresStore) replaceNoteLabels(ctx context.Context, tx pgx.Tx, noteID string, labelIDs []string) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM `+s.table("note_labels")+` WHERE note_id = $1`, noteID,
	); err != nil {
		return storeErr(err)
	}
	for _, labelID := range labelIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+s.table("note_labels")+` (note_id, label_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			noteID, labelID,
		); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// --- shares ---

func (s *PostgresStore) CreateShare(ctx context.Context, sh Share) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("notebook_shares")+` (notebook_id, user_id, level, created_at)
		 VALUES ($1, $2, $3, $4)`,
		sh.NotebookID, sh.UserID, string(sh.Level), sh.CreatedAt,
	)
	if pgIsUniqueViolation(err) {
		return ErrConflict
	}
	return storeErr(err)
}

func (s *PostgresStore) GetShare(ctx context.Context, notebookID, userID string) (Share, error) {
	var (
		sh    Share
		level string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT notebook_id, user_id, level, created_at
		   FROM `+s.table("notebook_shares")+`
		  WHERE notebook_id = $1 AND user_id = $2`,
		notebookID, userID,
	).Scan(&sh.NotebookID, &sh.UserID, &level, &sh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Share{}, ErrNotFound
	}
	if err != nil {
		return Share{}, storeErr(err)
	}
	sh.Level = access.Permission(level)
	return sh, nil
}

func (s *PostgresStore) UpdateShare(ctx context.Context, sh Share) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("notebook_shares")+`
		    SET level = $3
		  WHERE notebook_id = $1 AND user_id = $2`,
		sh.NotebookID, sh.UserID, string(sh.Level),
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteShare(ctx context.Context, notebookID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("notebook_shares")+`
		  WHERE notebook_id = $1 AND user_id = $2`,
		notebookID, userID,
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListShares(ctx context.Context, notebookID string) ([]Share, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT notebook_id, user_id, level, created_at
		   FROM `+s.table("notebook_shares")+`
		  WHERE notebook_id = $1
		  ORDER BY created_at`,
		notebookID,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var (
			sh    Share
			level string
		)
		if err := rows.Scan(&sh.NotebookID, &sh.UserID, &level, &sh.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		sh.Level = access.Permission(level)
		out = append(out, sh)
	}
	return out, storeErr(rows.Err())
}

// --- labels ---

func (s *PostgresStore) CreateLabel(ctx context.Context, l Label) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("labels")+` (id, owner_id, name, color, is_system, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		l.ID, l.OwnerID, l.Name, l.Color, l.System, l.CreatedAt,
	)
	if pgIsUniqueViolation(err) {
		return ErrConflict
	}
	return storeErr(err)
}

func (s *PostgresStore) GetLabel(ctx context.Context, id string) (Label, error) {
	var (
		l     Label
		owner *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, color, is_system, created_at
		   FROM `+s.table("labels")+`
		  WHERE id = $1`,
		id,
	).Scan(&l.ID, &owner, &l.Name, &l.Color, &l.System, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Label{}, ErrNotFound
	}
	if err != nil {
		return Label{}, storeErr(err)
	}
	if owner != nil {
		l.OwnerID = *owner
	}
	return l, nil
}

func (s *PostgresStore) GetLabels(ctx context.Context, ids []string) ([]Label, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, color, is_system, created_at
		   FROM `+s.table("labels")+`
		  WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	return scanLabels(rows)
}

func (s *PostgresStore) ListLabels(ctx context.Context, userID string) ([]Label, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, color, is_system, created_at
		   FROM `+s.table("labels")+`
		  WHERE is_system OR owner_id = $1
		  ORDER BY is_system DESC, name`,
		userID,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	return scanLabels(rows)
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("labels")+` WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLabels(rows pgx.Rows) ([]Label, error) {
	var out []Label
	for rows.Next() {
		var (
			l     Label
			owner *string
		)
		if err := rows.Scan(&l.ID, &owner, &l.Name, &l.Color, &l.System, &l.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		if owner != nil {
			l.OwnerID = *owner
		}
		out = append(out, l)
	}
	return out, storeErr(rows.Err())
}

// --- history ---

func (s *PostgresStore) ListHistory(ctx context.Context, noteID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, note_id, content, edited_by, edited_at
		   FROM `+s.table("note_history")+`
		  WHERE note_id = $1
		  ORDER BY edited_at DESC
		  LIMIT $2`,
		noteID, limit,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.NoteID, &h.Content, &h.EditedBy, &h.EditedAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, h)
	}
	return out, storeErr(rows.Err())
}

func (s *PostgresStore) GetHistoryEntry(ctx context.Context, id string) (HistoryEntry, error) {
	var h HistoryEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, note_id, content, edited_by, edited_at
		   FROM `+s.table("note_history")+`
		  WHERE id = $1`,
		id,
	).Scan(&h.ID, &h.NoteID, &h.Content, &h.EditedBy, &h.EditedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return HistoryEntry{}, storeErr(err)
	}
	return h, nil
}
