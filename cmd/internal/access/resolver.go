package access

import (
	"context"
	"errors"

	"inkwell/cmd/identity"
)

// NotebookInfo is the slice of notebook state the resolver needs.
type NotebookInfo struct {
	ID      string
	OwnerID string
}

// LabelInfo is the slice of label state the resolver needs. System labels
// have no owner and are usable by anyone.
type LabelInfo struct {
	ID      string
	OwnerID string
	System  bool
}

// Reader is the read-only view of storage the resolver works against.
// Absent rows are reported as ErrNotFound.
type Reader interface {
	GetNotebook(ctx context.Context, id string) (NotebookInfo, error)

	// GetShare returns the level granted to userID on notebookID.
	GetShare(ctx context.Context, notebookID, userID string) (Permission, error)

	// GetNoteNotebook returns the parent notebook id of a note.
	GetNoteNotebook(ctx context.Context, noteID string) (string, error)

	// GetLabels returns the labels found among ids (missing ids are simply
	// absent from the result).
	GetLabels(ctx context.Context, ids []string) ([]LabelInfo, error)
}

// Resolver answers permission questions. Stateless; safe for concurrent use.
type Resolver struct {
	store Reader
}

// NewResolver creates a Resolver over store.
func NewResolver(store Reader) *Resolver {
	return &Resolver{store: store}
}

// EnsureNotebook checks that the user holds at least need on the notebook and
// returns the effective level held.
//
// Errors: ErrNotFound if the notebook does not exist, a DeniedError
// (unwrapping to ErrForbidden) otherwise.
func (r *Resolver) EnsureNotebook(ctx context.Context, userID string, role identity.Role, notebookID string, need Permission) (Permission, error) {
	nb, err := r.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return "", err
	}

	if role == identity.RoleAdmin || nb.OwnerID == userID {
		return PermOwner, nil
	}

	// A share can grant at most write; owner-level operations stop here.
	if need == PermOwner {
		return "", denied("notebook", notebookID, ReasonOwnerOnly)
	}

	granted, err := r.store.GetShare(ctx, notebookID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", denied("notebook", notebookID, ReasonNotShared)
	case err != nil:
		return "", err
	}

	if !granted.Satisfies(need) {
		return "", denied("notebook", notebookID, ReasonInsufficient)
	}
	return granted, nil
}

// EnsureNote resolves access to a note by delegating to its parent notebook.
// A missing note is ErrNotFound regardless of the requested level.
func (r *Resolver) EnsureNote(ctx context.Context, userID string, role identity.Role, noteID string, need Permission) (Permission, error) {
	notebookID, err := r.store.GetNoteNotebook(ctx, noteID)
	if err != nil {
		return "", err
	}
	return r.EnsureNotebook(ctx, userID, role, notebookID, need)
}

// ValidateLabels checks a label batch all-or-nothing before it is attached to
// a note:
//
//   - every id must exist (otherwise ErrNotFound),
//   - every non-system label must belong to the user (otherwise a
//     DeniedError), with admins exempt.
//
// On any failure the whole batch is rejected and the caller must leave the
// note's labels unchanged.
func (r *Resolver) ValidateLabels(ctx context.Context, userID string, role identity.Role, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	labels, err := r.store.GetLabels(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]LabelInfo, len(labels))
	for _, l := range labels {
		byID[l.ID] = l
	}

	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			return ErrNotFound
		}
		if l.System || role == identity.RoleAdmin {
			continue
		}
		if l.OwnerID != userID {
			return denied("label", id, ReasonLabelOwner)
		}
	}
	return nil
}
