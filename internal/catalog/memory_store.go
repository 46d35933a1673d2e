package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// MemoryStore is an in-process catalog for tests and local demos.
type MemoryStore struct {
	mu       sync.RWMutex
	sources  map[domain.ProductID]string
	products map[domain.ProductID]domain.DisplayRecord
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:  make(map[domain.ProductID]string),
		products: make(map[domain.ProductID]domain.DisplayRecord),
	}
}

// AddSource registers a broadcast product name.
func (m *MemoryStore) AddSource(id domain.ProductID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[id] = name
}

// AddProduct registers a candidate record, replacing any previous one with the same id.
func (m *MemoryStore) AddProduct(r domain.DisplayRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[r.ID] = r
}

// NameByID implements NameSource.
func (m *MemoryStore) NameByID(ctx context.Context, id domain.ProductID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.sources[id]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

// RecordsByIDs implements RecordSource.
func (m *MemoryStore) RecordsByIDs(ctx context.Context, ids []domain.ProductID) ([]domain.DisplayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.DisplayRecord
	for _, id := range domain.DedupeIDs(ids, 0) {
		if r, ok := m.products[id]; ok {
			out = append(out, fillDefaults(r))
		}
	}
	return out, nil
}

// SearchIDs implements Searcher with plain substring matching, ids ascending.
func (m *MemoryStore) SearchIDs(ctx context.Context, p Predicate, limit int) ([]domain.ProductID, error) {
	if p.Empty() || limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []domain.ProductID
	for id, r := range m.products {
		if matches(p, r) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Popular implements PopularSource.
func (m *MemoryStore) Popular(ctx context.Context, limit int) ([]domain.DisplayRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.DisplayRecord, 0, len(m.products))
	for _, r := range m.products {
		records = append(records, fillDefaults(r))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].ReviewCount != records[j].ReviewCount {
			return records[i].ReviewCount > records[j].ReviewCount
		}
		return records[i].ID < records[j].ID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ListProducts implements Lister.
func (m *MemoryStore) ListProducts(ctx context.Context, afterID domain.ProductID, limit int) ([]domain.DisplayRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []domain.ProductID
	for id := range m.products {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.DisplayRecord, len(ids))
	for i, id := range ids {
		r := m.products[id]
		out[i] = domain.DisplayRecord{ID: id, Name: r.Name, StoreName: r.StoreName}
	}
	return out, nil
}

func matches(p Predicate, r domain.DisplayRecord) bool {
	hit := func(term string) bool {
		for _, c := range p.Columns {
			var v string
			switch c {
			case ColumnName:
				v = r.Name
			case ColumnStore:
				v = r.StoreName
			}
			if strings.Contains(v, term) {
				return true
			}
		}
		return false
	}

	if p.Mode == MatchAll {
		for _, t := range p.Terms {
			if !hit(t) {
				return false
			}
		}
		return true
	}
	for _, t := range p.Terms {
		if hit(t) {
			return true
		}
	}
	return false
}

var (
	_ Catalog = (*MemoryStore)(nil)
	_ Lister  = (*MemoryStore)(nil)
)
