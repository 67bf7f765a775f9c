package notebook

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"inkwell/cmd/identity"
	"inkwell/cmd/identity/ids"
	"inkwell/cmd/internal/access"
)

// UserDirectory is the slice of the identity store the service needs to
// validate share grantees.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (identity.User, error)
}

// Service implements the content domain operations. Every method resolves
// the actor's permission through the access resolver before mutating state.
type Service struct {
	store    Store
	users    UserDirectory
	resolver *access.Resolver
	pub      Publisher
	log      *slog.Logger

	now func() time.Time
}

// NewService wires the content service. pub may be nil (events dropped).
func NewService(store Store, users UserDirectory, resolver *access.Resolver, pub Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		users:    users,
		resolver: resolver,
		pub:      pub,
		log:      log,
		now:      time.Now,
	}
}

// --- notebooks ---

// CreateNotebookInput carries the fields a user controls on creation.
type CreateNotebookInput struct {
	Title       string
	Description string
}

func (s *Service) CreateNotebook(ctx context.Context, actor Actor, in CreateNotebookInput) (Notebook, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Notebook{}, ErrInvalidInput
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Notebook{}, err
	}
	nb := Notebook{
		ID:          id,
		OwnerID:     actor.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateNotebook(ctx, nb); err != nil {
		return Notebook{}, err
	}

	s.log.DebugContext(ctx, "notebook.created", "notebook_id", nb.ID, "owner_id", actor.ID)
	return nb, nil
}

func (s *Service) GetNotebook(ctx context.Context, actor Actor, id string) (Notebook, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, id, access.PermRead); err != nil {
		return Notebook{}, err
	}
	return s.store.GetNotebook(ctx, id)
}

func (s *Service) ListNotebooks(ctx context.Context, actor Actor) ([]Notebook, error) {
	return s.store.ListNotebooks(ctx, actor.ID)
}

func (s *Service) UpdateNotebook(ctx context.Context, actor Actor, id string, in CreateNotebookInput) (Notebook, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, id, access.PermWrite); err != nil {
		return Notebook{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Notebook{}, ErrInvalidInput
	}

	nb, err := s.store.GetNotebook(ctx, id)
	if err != nil {
		return Notebook{}, err
	}
	nb.Title = title
	nb.Description = strings.TrimSpace(in.Description)
	nb.UpdatedAt = s.now()

	if err := s.store.UpdateNotebook(ctx, nb); err != nil {
		return Notebook{}, err
	}
	return nb, nil
}

func (s *Service) DeleteNotebook(ctx context.Context, actor Actor, id string) error {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, id, access.PermOwner); err != nil {
		return err
	}
	if err := s.store.DeleteNotebook(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "notebook.deleted", "notebook_id", id, "actor_id", actor.ID)
	return nil
}

// --- notes ---

// NoteInput carries the writable fields of a note.
type NoteInput struct {
	Title    string
	Content  string
	LabelIDs []string
}

func (s *Service) CreateNote(ctx context.Context, actor Actor, notebookID string, in NoteInput) (Note, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, notebookID, access.PermWrite); err != nil {
		return Note{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Note{}, ErrInvalidInput
	}
	labels := dedupe(in.LabelIDs)
	if err := s.resolver.ValidateLabels(ctx, actor.ID, actor.Role, labels); err != nil {
		return Note{}, err
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Note{}, err
	}
	n := Note{
		ID:         id,
		NotebookID: notebookID,
		Title:      title,
		Content:    in.Content,
		LabelIDs:   labels,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateNote(ctx, n); err != nil {
		return Note{}, err
	}

	s.publish(EventNoteCreated, n.NotebookID, n.ID, actor.ID, now)
	return n, nil
}

func (s *Service) GetNote(ctx context.Context, actor Actor, id string) (Note, error) {
	if _, err := s.resolver.EnsureNote(ctx, actor.ID, actor.Role, id, access.PermRead); err != nil {
		return Note{}, err
	}
	return s.store.GetNote(ctx, id)
}

func (s *Service) ListNotes(ctx context.Context, actor Actor, in ListNotesInput) ([]Note, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, in.NotebookID, access.PermRead); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, in)
}

// UpdateNote replaces the note's fields. A content change appends a history
// entry holding the replaced content, in the same transaction as the update.
func (s *Service) UpdateNote(ctx context.Context, actor Actor, id string, in NoteInput) (Note, error) {
	if _, err := s.resolver.EnsureNote(ctx, actor.ID, actor.Role, id, access.PermWrite); err != nil {
		return Note{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Note{}, ErrInvalidInput
	}
	labels := dedupe(in.LabelIDs)
	if err := s.resolver.ValidateLabels(ctx, actor.ID, actor.Role, labels); err != nil {
		return Note{}, err
	}

	cur, err := s.store.GetNote(ctx, id)
	if err != nil {
		return Note{}, err
	}

	now := s.now()
	next := cur
	next.Title = title
	next.Content = in.Content
	next.LabelIDs = labels
	next.UpdatedAt = now

	var hist *HistoryEntry
	if cur.Content != in.Content {
		histID, err := ids.NewULID(now)
		if err != nil {
			return Note{}, err
		}
		hist = &HistoryEntry{
			ID:       histID,
			NoteID:   id,
			Content:  cur.Content,
			EditedBy: actor.ID,
			EditedAt: now,
		}
	}

	if err := s.store.UpdateNote(ctx, next, hist); err != nil {
		return Note{}, err
	}

	s.publish(EventNoteUpdated, next.NotebookID, id, actor.ID, now)
	return next, nil
}

// DeleteNote removes a note. Deletion requires the owner level on the parent
// notebook; a write share is not enough.
func (s *Service) DeleteNote(ctx context.Context, actor Actor, id string) error {
	if _, err := s.resolver.EnsureNote(ctx, actor.ID, actor.Role, id, access.PermOwner); err != nil {
		return err
	}

	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, id); err != nil {
		return err
	}

	s.publish(EventNoteDeleted, n.NotebookID, id, actor.ID, s.now())
	return nil
}

func (s *Service) ListHistory(ctx context.Context, actor Actor, noteID string, limit int) ([]HistoryEntry, error) {
	if _, err := s.resolver.EnsureNote(ctx, actor.ID, actor.Role, noteID, access.PermRead); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, noteID, limit)
}

// RestoreNote re-applies a history entry's content to the note. The replaced
// content gets its own history entry, so a restore is never destructive.
func (s *Service) RestoreNote(ctx context.Context, actor Actor, noteID, historyID string) (Note, error) {
	if _, err := s.resolver.EnsureNote(ctx, actor.ID, actor.Role, noteID, access.PermWrite); err != nil {
		return Note{}, err
	}

	entry, err := s.store.GetHistoryEntry(ctx, historyID)
	if err != nil {
		return Note{}, err
	}
	if entry.NoteID != noteID {
		return Note{}, ErrNotFound
	}

	cur, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return Note{}, err
	}

	now := s.now()
	next := cur
	next.Content = entry.Content
	next.UpdatedAt = now

	histID, err := ids.NewULID(now)
	if err != nil {
		return Note{}, err
	}
	hist := &HistoryEntry{
		ID:       histID,
		NoteID:   noteID,
		Content:  cur.Content,
		EditedBy: actor.ID,
		EditedAt: now,
	}
	if err := s.store.UpdateNote(ctx, next, hist); err != nil {
		return Note{}, err
	}

	s.publish(EventNoteRestored, next.NotebookID, noteID, actor.ID, now)
	return next, nil
}

// --- shares ---

// ShareInput names a grantee and a level.
type ShareInput struct {
	UserID string
	Level  access.Permission
}

// CreateShare grants a user access to a notebook. Owner-or-admin only.
// The grantee must exist, must not be the actor, and must not be the
// notebook's owner; a duplicate grant is a conflict.
func (s *Service) CreateShare(ctx context.Context, actor Actor, notebookID string, in ShareInput) (Share, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, notebookID, access.PermOwner); err != nil {
		return Share{}, err
	}
	if !in.Level.Shareable() {
		return Share{}, ErrInvalidInput
	}
	if in.UserID == actor.ID {
		return Share{}, ErrInvalidInput
	}

	nb, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return Share{}, err
	}
	if in.UserID == nb.OwnerID {
		return Share{}, ErrInvalidInput
	}

	if _, err := s.users.GetByID(ctx, in.UserID); err != nil {
		if identity.IsNotFound(err) {
			return Share{}, ErrNotFound
		}
		return Share{}, err
	}

	sh := Share{
		NotebookID: notebookID,
		UserID:     in.UserID,
		Level:      in.Level,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateShare(ctx, sh); err != nil {
		return Share{}, err
	}

	s.log.InfoContext(ctx, "notebook.shared",
		"notebook_id", notebookID, "user_id", in.UserID, "level", string(in.Level))
	return sh, nil
}

func (s *Service) UpdateShare(ctx context.Context, actor Actor, notebookID string, in ShareInput) (Share, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, notebookID, access.PermOwner); err != nil {
		return Share{}, err
	}
	if !in.Level.Shareable() {
		return Share{}, ErrInvalidInput
	}

	sh := Share{NotebookID: notebookID, UserID: in.UserID, Level: in.Level}
	if err := s.store.UpdateShare(ctx, sh); err != nil {
		return Share{}, err
	}
	return s.store.GetShare(ctx, notebookID, in.UserID)
}

func (s *Service) RevokeShare(ctx context.Context, actor Actor, notebookID, userID string) error {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, notebookID, access.PermOwner); err != nil {
		return err
	}
	if err := s.store.DeleteShare(ctx, notebookID, userID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "notebook.share_revoked", "notebook_id", notebookID, "user_id", userID)
	return nil
}

func (s *Service) ListShares(ctx context.Context, actor Actor, notebookID string) ([]Share, error) {
	if _, err := s.resolver.EnsureNotebook(ctx, actor.ID, actor.Role, notebookID, access.PermOwner); err != nil {
		return nil, err
	}
	return s.store.ListShares(ctx, notebookID)
}

// --- labels ---

// LabelInput carries the writable fields of a label.
type LabelInput struct {
	Name   string
	Color  string
	System bool
}

// CreateLabel creates a user label owned by the actor, or a system label
// when System is set (admin only).
func (s *Service) CreateLabel(ctx context.Context, actor Actor, in LabelInput) (Label, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Label{}, ErrInvalidInput
	}
	if in.System && !actor.Admin() {
		return Label{}, &access.DeniedError{Resource: "label", Reason: access.ReasonOwnerOnly}
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Label{}, err
	}
	l := Label{
		ID:        id,
		Name:      name,
		Color:     strings.TrimSpace(in.Color),
		System:    in.System,
		CreatedAt: now,
	}
	if !in.System {
		l.OwnerID = actor.ID
	}
	if err := s.store.CreateLabel(ctx, l); err != nil {
		return Label{}, err
	}
	return l, nil
}

func (s *Service) ListLabels(ctx context.Context, actor Actor) ([]Label, error) {
	return s.store.ListLabels(ctx, actor.ID)
}

// DeleteLabel removes a label. System labels are admin-only; user labels can
// be removed by their owner or an admin.
func (s *Service) DeleteLabel(ctx context.Context, actor Actor, id string) error {
	l, err := s.store.GetLabel(ctx, id)
	if err != nil {
		return err
	}
	if l.System && !actor.Admin() {
		return &access.DeniedError{Resource: "label", ID: id, Reason: access.ReasonOwnerOnly}
	}
	if !l.System && l.OwnerID != actor.ID && !actor.Admin() {
		return &access.DeniedError{Resource: "label", ID: id, Reason: access.ReasonLabelOwner}
	}
	return s.store.DeleteLabel(ctx, id)
}

func (s *Service) publish(typ, notebookID, noteID, actorID string, at time.Time) {
	s.pub.Publish(notebookID, Event{
		Type:       typ,
		NotebookID: notebookID,
		NoteID:     noteID,
		ActorID:    actorID,
		At:         at,
	})
}

func dedupe(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
