// Package memory is an in-process store.Gateway used in tests and for
// small corpora that do not justify running a vector database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/paperscope/paperscope/internal/embedding"
	"github.com/paperscope/paperscope/internal/store"
)

// Store holds records in a map and answers searches with an exact cosine
// scan. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	records   map[string]store.Record
	order     []string // insertion order, for deterministic tie-breaks
	dimension int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]store.Record)}
}

func (s *Store) EnsureCollection(_ context.Context, dimension int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	return nil
}

func (s *Store) Upsert(_ context.Context, records []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *Store) Search(_ context.Context, vector []float32, topK int, filter store.Filter) ([]store.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]store.Hit, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if !matches(rec.Metadata, filter) {
			continue
		}
		hits = append(hits, store.Hit{
			ID:       rec.ID,
			Score:    embedding.Cosine(vector, rec.Vector),
			Metadata: rec.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *Store) Fetch(_ context.Context, id string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) DeleteCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]store.Record)
	s.order = nil
	return nil
}

func (s *Store) HealthCheck(context.Context) bool { return true }

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(metadata map[string]any, filter store.Filter) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}
