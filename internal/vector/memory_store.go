package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// MemoryStore is an in-process exact L2 index.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[domain.ProductID][]float32
}

// NewMemoryStore creates an empty index for vectors of the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	if dimension <= 0 {
		dimension = 384
	}
	return &MemoryStore{
		dimension: dimension,
		vectors:   make(map[domain.ProductID][]float32),
	}
}

// Search scores every allowed id that has a vector.
func (s *MemoryStore) Search(ctx context.Context, query []float32, allow []domain.ProductID, k int) (domain.Ranking, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(query))
	}
	if k <= 0 || len(allow) == 0 {
		return domain.Ranking{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make(domain.Ranking, 0, len(allow))
	seen := make(map[domain.ProductID]struct{}, len(allow))
	for _, id := range allow {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		vec, ok := s.vectors[id]
		if !ok {
			continue
		}
		results = append(results, domain.Scored{ID: id, Distance: l2Distance(query, vec)})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Upsert adds vectors. The batch is rejected whole if any vector has the wrong length.
func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %d", ErrDimensionMismatch, s.dimension, len(e.Vector), e.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		s.vectors[e.ID] = vec
	}
	return nil
}

// Count returns the number of vectors in the index.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.vectors)), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
