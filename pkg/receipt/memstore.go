package receipt

import (
	"context"
	"sync"
)

// MemStore is the in-process Store used by tests and single-session flows.
type MemStore struct {
	mu   sync.Mutex
	data map[Key]Fields
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[Key]Fields{}}
}

func (s *MemStore) Get(_ context.Context, key Key) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return Merge(f, nil), nil
}

func (s *MemStore) Apply(_ context.Context, key Key, patch Fields) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := Merge(s.data[key], patch)
	s.data[key] = merged
	return Merge(merged, nil), nil
}
