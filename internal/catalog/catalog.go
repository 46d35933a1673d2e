// Package catalog reads the broadcast and online-mall product catalogs.
package catalog

import (
	"context"
	"errors"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// ErrNotFound is returned when a source product has no name on record.
var ErrNotFound = errors.New("product not found")

// MatchMode selects how predicate terms combine.
type MatchMode int

const (
	// MatchAny matches rows where any term appears in any column.
	MatchAny MatchMode = iota
	// MatchAll matches rows where every term appears in at least one column.
	MatchAll
)

func (m MatchMode) String() string {
	if m == MatchAll {
		return "all"
	}
	return "any"
}

// Column is a searchable candidate column.
type Column string

const (
	ColumnName  Column = "name"
	ColumnStore Column = "store"
)

// Predicate is a substring search over candidate columns.
type Predicate struct {
	Mode    MatchMode
	Terms   []string
	Columns []Column
}

// Empty reports whether the predicate can match nothing.
func (p Predicate) Empty() bool {
	return len(p.Terms) == 0 || len(p.Columns) == 0
}

// NameSource resolves a broadcast product to its display name.
type NameSource interface {
	NameByID(ctx context.Context, id domain.ProductID) (string, error)
}

// RecordSource loads candidate display records. Missing ids are omitted and order is unspecified.
type RecordSource interface {
	RecordsByIDs(ctx context.Context, ids []domain.ProductID) ([]domain.DisplayRecord, error)
}

// Searcher returns candidate ids matching a predicate, at most limit of them.
type Searcher interface {
	SearchIDs(ctx context.Context, p Predicate, limit int) ([]domain.ProductID, error)
}

// PopularSource returns the most reviewed candidates, ties broken by id.
type PopularSource interface {
	Popular(ctx context.Context, limit int) ([]domain.DisplayRecord, error)
}

// Lister pages through candidate products by ascending id, starting after afterID.
// Only id, name and store are populated.
type Lister interface {
	ListProducts(ctx context.Context, afterID domain.ProductID, limit int) ([]domain.DisplayRecord, error)
}

// Catalog bundles every read the recommendation pipeline needs.
type Catalog interface {
	NameSource
	RecordSource
	Searcher
	PopularSource
	Lister
}

// fillDefaults sets the discounted price to the list price when absent and derives
// the discount rate when only the two prices are known.
func fillDefaults(r domain.DisplayRecord) domain.DisplayRecord {
	if r.DiscountedPrice == 0 {
		r.DiscountedPrice = r.Price
	}
	if r.DiscountRate == 0 && r.Price > 0 && r.DiscountedPrice > 0 && r.Price != r.DiscountedPrice {
		r.DiscountRate = int(float64(r.Price-r.DiscountedPrice) / float64(r.Price) * 100)
	}
	return r
}
