package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record // tokenHash -> record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.TokenHash] = rec
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[tokenHash]
	if !ok {
		return Record{}, ErrUnknownSession
	}
	return rec, nil
}

func (s *MemoryStore) Rotate(_ context.Context, now time.Time, oldHash string, next Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.recs[oldHash]
	if !ok {
		return ErrUnknownSession
	}
	if !old.Active() {
		return ErrSessionNotActive
	}

	revokedAt := now
	nextHash := next.TokenHash
	old.RevokedAt = &revokedAt
	old.ReplacedByHash = &nextHash
	s.recs[oldHash] = old
	s.recs[next.TokenHash] = next
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, now time.Time, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[tokenHash]
	if !ok {
		return nil
	}
	if rec.RevokedAt == nil {
		revokedAt := now
		rec.RevokedAt = &revokedAt
		s.recs[tokenHash] = rec
	}
	return nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, now time.Time, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.recs {
		if rec.UserID != userID || rec.RevokedAt != nil {
			continue
		}
		revokedAt := now
		rec.RevokedAt = &revokedAt
		s.recs[hash] = rec
	}
	return nil
}
