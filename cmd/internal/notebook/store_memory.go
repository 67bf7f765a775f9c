package notebook

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	notebooks map[string]Notebook
	notes     map[string]Note
	shares    map[string]Share // key notebookID+"/"+userID
	labels    map[string]Label
	history   map[string]HistoryEntry
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notebooks: make(map[string]Notebook),
		notes:     make(map[string]Note),
		shares:    make(map[string]Share),
		labels:    make(map[string]Label),
		history:   make(map[string]HistoryEntry),
	}
}

func shareKey(notebookID, userID string) string { return notebookID + "/" + userID }

func (s *MemoryStore) CreateNotebook(_ context.Context, nb Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notebooks[nb.ID] = nb
	return nil
}

func (s *MemoryStore) GetNotebook(_ context.Context, id string) (Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.notebooks[id]
	if !ok {
		return Notebook{}, ErrNotFound
	}
	return nb, nil
}

func (s *MemoryStore) ListNotebooks(_ context.Context, userID string) ([]Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Notebook
	for _, nb := range s.notebooks {
		if nb.OwnerID == userID {
			out = append(out, nb)
			continue
		}
		if _, ok := s.shares[shareKey(nb.ID, userID)]; ok {
			out = append(out, nb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateNotebook(_ context.Context, nb Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notebooks[nb.ID]
	if !ok {
		return ErrNotFound
	}
	nb.OwnerID = cur.OwnerID
	nb.CreatedAt = cur.CreatedAt
	s.notebooks[nb.ID] = nb
	return nil
}

func (s *MemoryStore) DeleteNotebook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notebooks[id]; !ok {
		return ErrNotFound
	}
	delete(s.notebooks, id)
	for nid, n := range s.notes {
		if n.NotebookID != id {
			continue
		}
		delete(s.notes, nid)
		for hid, h := range s.history {
			if h.NoteID == nid {
				delete(s.history, hid)
			}
		}
	}
	for key, sh := range s.shares {
		if sh.NotebookID == id {
			delete(s.shares, key)
		}
	}
	return nil
}

func (s *MemoryStore) CreateNote(_ context.Context, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = cloneNote(n)
	return nil
}

func (s *MemoryStore) GetNote(_ context.Context, id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return cloneNote(n), nil
}

func (s *MemoryStore) ListNotes(_ context.Context, in ListNotesInput) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Note
	for _, n := range s.notes {
		if n.NotebookID != in.NotebookID {
			continue
		}
		if !hasAllLabels(n.LabelIDs, in.LabelIDs) {
			continue
		}
		out = append(out, cloneNote(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, n Note, hist *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notes[n.ID]
	if !ok {
		return ErrNotFound
	}
	n.NotebookID = cur.NotebookID
	n.CreatedAt = cur.CreatedAt
	s.notes[n.ID] = cloneNote(n)
	if hist != nil {
		s.history[hist.ID] = *hist
	}
	return nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return ErrNotFound
	}
	delete(s.notes, id)
	for hid, h := range s.history {
		if h.NoteID == id {
			delete(s.history, hid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateShare(_ context.Context, sh Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shareKey(sh.NotebookID, sh.UserID)
	if _, ok := s.shares[key]; ok {
		return ErrConflict
	}
	s.shares[key] = sh
	return nil
}

func (s *MemoryStore) GetShare(_ context.Context, notebookID, userID string) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[shareKey(notebookID, userID)]
	if !ok {
		return Share{}, ErrNotFound
	}
	return sh, nil
}

func (s *MemoryStore) UpdateShare(_ context.Context, sh Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shareKey(sh.NotebookID, sh.UserID)
	cur, ok := s.shares[key]
	if !ok {
		return ErrNotFound
	}
	cur.Level = sh.Level
	s.shares[key] = cur
	return nil
}

func (s *MemoryStore) DeleteShare(_ context.Context, notebookID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shareKey(notebookID, userID)
	if _, ok := s.shares[key]; !ok {
		return ErrNotFound
	}
	delete(s.shares, key)
	return nil
}

func (s *MemoryStore) ListShares(_ context.Context, notebookID string) ([]Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Share
	for _, sh := range s.shares {
		if sh.NotebookID == notebookID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateLabel(_ context.Context, l Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[l.ID] = l
	return nil
}

func (s *MemoryStore) GetLabel(_ context.Context, id string) (Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.labels[id]
	if !ok {
		return Label{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) GetLabels(_ context.Context, ids []string) ([]Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Label
	for _, id := range ids {
		if l, ok := s.labels[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListLabels(_ context.Context, userID string) ([]Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Label
	for _, l := range s.labels {
		if l.System || l.OwnerID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].System != out[j].System {
			return out[i].System
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) DeleteLabel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.labels[id]; !ok {
		return ErrNotFound
	}
	delete(s.labels, id)
	for nid, n := range s.notes {
		n.LabelIDs = removeString(n.LabelIDs, id)
		s.notes[nid] = n
	}
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, noteID string, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryEntry
	for _, h := range s.history {
		if h.NoteID == noteID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EditedAt.After(out[j].EditedAt) })
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetHistoryEntry(_ context.Context, id string) (HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[id]
	if !ok {
		return HistoryEntry{}, ErrNotFound
	}
	return h, nil
}

func cloneNote(n Note) Note {
	n.LabelIDs = append([]string(nil), n.LabelIDs...)
	return n
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func removeString(ss []string, drop string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
