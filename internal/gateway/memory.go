package gateway

import (
	"context"
	"sync"

	apperrors "coauthor-backend/pkg/errors"
)

type memoryKey struct {
	kind Kind
	id   string
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]Record)}
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[memoryKey{kind, id}]
	if !ok {
		return nil, apperrors.NewNotFoundError(string(kind))
	}
	rec.Body = append([]byte(nil), rec.Body...)
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{rec.Kind, rec.ID}
	current, exists := s.records[key]
	switch {
	case expectedVersion == 0 && exists:
		return apperrors.NewConflictError(string(rec.Kind) + " '" + rec.ID + "' already exists")
	case expectedVersion != 0 && (!exists || current.Version != expectedVersion):
		return apperrors.NewConflictError(string(rec.Kind) + " '" + rec.ID + "' was modified concurrently")
	}
	rec.Body = append([]byte(nil), rec.Body...)
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{kind, id}
	if _, ok := s.records[key]; !ok {
		return apperrors.NewNotFoundError(string(kind))
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
