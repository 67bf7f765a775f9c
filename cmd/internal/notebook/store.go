package notebook

import (
	"context"
	"errors"

	"inkwell/cmd/internal/access"
)

// ListNotesInput filters a notebook's notes. LabelIDs, when non-empty,
// restricts to notes carrying every listed label.
type ListNotesInput struct {
	NotebookID string
	LabelIDs   []string
	Limit      int
	Offset     int
}

// Store abstracts persistence for the content domain. Missing rows are
// ErrNotFound; duplicate shares are ErrConflict.
type Store interface {
	CreateNotebook(ctx context.Context, nb Notebook) error
	GetNotebook(ctx context.Context, id string) (Notebook, error)
	// ListNotebooks returns notebooks the user owns or has a share on.
	ListNotebooks(ctx context.Context, userID string) ([]Notebook, error)
	UpdateNotebook(ctx context.Context, nb Notebook) error
	// DeleteNotebook removes the notebook and everything under it.
	DeleteNotebook(ctx context.Context, id string) error

	CreateNote(ctx context.Context, n Note) error
	GetNote(ctx context.Context, id string) (Note, error)
	ListNotes(ctx context.Context, in ListNotesInput) ([]Note, error)
	// UpdateNote replaces the note row and its label set. When hist is
	// non-nil it is appended in the same transaction, so a content edit and
	// its history entry land together or not at all.
	UpdateNote(ctx context.Context, n Note, hist *HistoryEntry) error
	DeleteNote(ctx context.Context, id string) error

	CreateShare(ctx context.Context, sh Share) error
	GetShare(ctx context.Context, notebookID, userID string) (Share, error)
	UpdateShare(ctx context.Context, sh Share) error
	DeleteShare(ctx context.Context, notebookID, userID string) error
	ListShares(ctx context.Context, notebookID string) ([]Share, error)

	CreateLabel(ctx context.Context, l Label) error
	GetLabel(ctx context.Context, id string) (Label, error)
	// GetLabels returns the labels found among ids; missing ids are absent
	// from the result.
	GetLabels(ctx context.Context, ids []string) ([]Label, error)
	// ListLabels returns system labels plus the user's own.
	ListLabels(ctx context.Context, userID string) ([]Label, error)
	DeleteLabel(ctx context.Context, id string) error

	ListHistory(ctx context.Context, noteID string, limit int) ([]HistoryEntry, error)
	GetHistoryEntry(ctx context.Context, id string) (HistoryEntry, error)
}

// accessReader adapts a Store to the access.Reader interface, translating
// this package's sentinels into the access package's.
type accessReader struct {
	store Store
}

// NewAccessReader exposes st to the permission resolver.
func NewAccessReader(st Store) access.Reader {
	return accessReader{store: st}
}

func (r accessReader) GetNotebook(ctx context.Context, id string) (access.NotebookInfo, error) {
	nb, err := r.store.GetNotebook(ctx, id)
	if err != nil {
		return access.NotebookInfo{}, translateErr(err)
	}
	return access.NotebookInfo{ID: nb.ID, OwnerID: nb.OwnerID}, nil
}

func (r accessReader) GetShare(ctx context.Context, notebookID, userID string) (access.Permission, error) {
	sh, err := r.store.GetShare(ctx, notebookID, userID)
	if err != nil {
		return "", translateErr(err)
	}
	return sh.Level, nil
}

func (r accessReader) GetNoteNotebook(ctx context.Context, noteID string) (string, error) {
	n, err := r.store.GetNote(ctx, noteID)
	if err != nil {
		return "", translateErr(err)
	}
	return n.NotebookID, nil
}

func (r accessReader) GetLabels(ctx context.Context, ids []string) ([]access.LabelInfo, error) {
	labels, err := r.store.GetLabels(ctx, ids)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]access.LabelInfo, 0, len(labels))
	for _, l := range labels {
		out = append(out, access.LabelInfo{ID: l.ID, OwnerID: l.OwnerID, System: l.System})
	}
	return out, nil
}

func translateErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return access.ErrNotFound
	}
	return err
}
