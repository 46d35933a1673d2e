// Package vector provides similarity search over candidate product embeddings.
package vector

import (
	"context"
	"errors"
	"math"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// ErrDimensionMismatch indicates a vector whose length differs from the store's.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Store defines the interface for similarity search restricted to an allow-list.
type Store interface {
	// Search returns at most k ids from allow, nearest first. Ties are broken by id.
	Search(ctx context.Context, query []float32, allow []domain.ProductID, k int) (domain.Ranking, error)

	// Upsert adds or replaces product vectors.
	Upsert(ctx context.Context, entries []Entry) error

	// Count returns the number of indexed products.
	Count(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

// Entry is one product embedding.
type Entry struct {
	ID     domain.ProductID
	Vector []float32
}

// l2Distance is the Euclidean distance, matching pgvector's <-> operator.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func idArgs(ids []domain.ProductID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
