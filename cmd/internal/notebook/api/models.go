package notebookapi

import (
	"time"

	"inkwell/cmd/internal/notebook"
)

type notebookRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type noteRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	LabelIDs []string `json:"label_ids"`
}

type shareRequest struct {
	UserID string `json:"user_id"`
	Level  string `json:"level"`
}

type shareLevelRequest struct {
	Level string `json:"level"`
}

type labelRequest struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	System bool   `json:"system"`
}

type notebookResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type noteResponse struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	LabelIDs   []string  `json:"label_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type shareResponse struct {
	NotebookID string    `json:"notebook_id"`
	UserID     string    `json:"user_id"`
	Level      string    `json:"level"`
	CreatedAt  time.Time `json:"created_at"`
}

type labelResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	ID       string    `json:"id"`
	NoteID   string    `json:"note_id"`
	Content  string    `json:"content"`
	EditedBy string    `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}

func toNotebookResponse(nb notebook.Notebook) notebookResponse {
	return notebookResponse{
		ID:          nb.ID,
		OwnerID:     nb.OwnerID,
		Title:       nb.Title,
		Description: nb.Description,
		CreatedAt:   nb.CreatedAt,
		UpdatedAt:   nb.UpdatedAt,
	}
}

func toNoteResponse(n notebook.Note) noteResponse {
	labels := n.LabelIDs
	if labels == nil {
		labels = []string{}
	}
	return noteResponse{
		ID:         n.ID,
		NotebookID: n.NotebookID,
		Title:      n.Title,
		Content:    n.Content,
		LabelIDs:   labels,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func toShareResponse(sh notebook.Share) shareResponse {
	return shareResponse{
		NotebookID: sh.NotebookID,
		UserID:     sh.UserID,
		Level:      string(sh.Level),
		CreatedAt:  sh.CreatedAt,
	}
}

func toLabelResponse(l notebook.Label) labelResponse {
	return labelResponse{
		ID:        l.ID,
		OwnerID:   l.OwnerID,
		Name:      l.Name,
		Color:     l.Color,
		System:    l.System,
		CreatedAt: l.CreatedAt,
	}
}

func toHistoryResponse(h notebook.HistoryEntry) historyResponse {
	return historyResponse{
		ID:       h.ID,
		NoteID:   h.NoteID,
		Content:  h.Content,
		EditedBy: h.EditedBy,
		EditedAt: h.EditedAt,
	}
}
