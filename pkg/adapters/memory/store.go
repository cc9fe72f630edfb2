package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/thicket/pkg/domain"
)

// Store implements ports.TreeStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.TreeSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store, optionally seeded with snapshots.
func NewStore(seed ...*domain.TreeSnapshot) *Store {
	s := &Store{
		data: make(map[string]*domain.TreeSnapshot),
	}
	for _, snap := range seed {
		s.data[snap.ID] = snap.Clone()
	}
	return s
}

// Save stores a deep copy of the snapshot.
func (s *Store) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	copied := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.ID] = copied
	return nil
}

// Load returns a copy so callers cannot mutate the stored snapshot.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[treeID]
	if !ok {
		return nil, domain.ErrTreeNotFound
	}
	return snap.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, treeID)
	return nil
}

// List returns the root tree ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id, snap := range s.data {
		if snap.IsRoot() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Children returns the snapshots nested directly in parentID.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TreeSnapshot
	for _, snap := range s.data {
		if snap.ParentID() == parentID && parentID != "" {
			out = append(out, snap.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
