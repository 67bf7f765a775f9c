package notebook

import (
	"time"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/access"
)

// Actor is the authenticated user a service call runs as.
type Actor struct {
	ID   string
	Role identity.Role
}

// Admin reports whether the actor holds the admin role.
func (a Actor) Admin() bool { return a.Role == identity.RoleAdmin }

// Notebook is a container of notes owned by exactly one user.
type Notebook struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Note belongs to one notebook. LabelIDs is the attached label set.
type Note struct {
	ID         string
	NotebookID string
	Title      string
	Content    string
	LabelIDs   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Share grants a user read or write on a notebook. The owner never has a
// share row; ownership is implicit.
type Share struct {
	NotebookID string
	UserID     string
	Level      access.Permission
	CreatedAt  time.Time
}

// Label tags notes. System labels have an empty OwnerID, are managed by
// admins, and are usable by anyone; user labels belong to their creator.
type Label struct {
	ID        string
	OwnerID   string
	Name      string
	Color     string
	System    bool
	CreatedAt time.Time
}

// HistoryEntry captures the content a note held before an edit replaced it.
type HistoryEntry struct {
	ID       string
	NoteID   string
	Content  string
	EditedBy string
	EditedAt time.Time
}
