package notebook

import "time"

// Event types published on note changes.
const (
	EventNoteCreated  = "note.created"
	EventNoteUpdated  = "note.updated"
	EventNoteDeleted  = "note.deleted"
	EventNoteRestored = "note.restored"
)

// Event describes one change inside a notebook, addressed to its
// collaborators.
type Event struct {
	Type       string    `json:"type"`
	NotebookID string    `json:"notebook_id"`
	NoteID     string    `json:"note_id"`
	ActorID    string    `json:"actor_id"`
	At         time.Time `json:"at"`
}

// Publisher fans an event out to subscribers of a notebook. Implementations
// must not block the caller; delivery is best-effort.
type Publisher interface {
	Publish(notebookID string, ev Event)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(string, Event) {}
