package repository

import (
	"sync"

	"portfolio-sync/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore is the flat key-indexed storage engine: collections are plain
// maps guarded by one RWMutex. It is the fallback when the structured engine
// is unavailable, and its operations never fail.
type MemoryStore struct {
	collections map[string]map[string]domain.Record
	mu          sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]domain.Record),
	}
}

func (s *MemoryStore) Save(collection string, rec domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	if stored == nil {
		stored = domain.Record{}
	}
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]domain.Record)
		s.collections[collection] = col
	}
	col[stored.ID()] = stored

	return stored.Clone(), nil
}

func (s *MemoryStore) FindByID(collection, id string) domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil
	}
	return rec.Clone()
}

func (s *MemoryStore) FindAll(collection string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	out := make([]domain.Record, 0, len(col))
	for _, rec := range col {
		out = append(out, rec.Clone())
	}
	return out
}

func (s *MemoryStore) Update(collection, id string, fields map[string]any) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}

	merged := rec.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	merged["id"] = id // the identifier is not patchable
	s.collections[collection][id] = merged

	return merged.Clone(), nil
}

func (s *MemoryStore) Delete(collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	if _, ok := col[id]; !ok {
		return false, nil
	}
	delete(col, id)
	return true, nil
}

func (s *MemoryStore) Query(collection string, match func(domain.Record) bool) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Record
	for _, rec := range s.collections[collection] {
		if match(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (s *MemoryStore) ClearCollection(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Engine() string { return "memory" }

// compile-time check
var _ domain.RecordStore = (*MemoryStore)(nil)
