package store

import (
	"context"
	"sync"

	"github.com/tatianab/hustle/internal/models"
)

// MemoryStore keeps the encoded snapshot in memory. Used for tests and
// throwaway server runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores an encoded copy so callers cannot mutate what was saved.
func (s *MemoryStore) Save(_ context.Context, snap *models.Snapshot) error {
	data, err := encodeJSON(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, ErrNoSnapshot
	}
	return decodeJSON(s.data)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
