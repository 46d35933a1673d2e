// Package rank orders gated candidates by embedding similarity to the source product.
package rank

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vector"
)

// Ranker embeds a query text and ranks candidates against it.
type Ranker struct {
	embedder embedding.Embedder
	store    vector.Store
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewRanker creates a ranker. metrics and logger may be nil.
func NewRanker(embedder embedding.Embedder, store vector.Store, metrics *observability.Metrics, logger *observability.Logger) *Ranker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Ranker{
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		logger:   logger.WithOperation("rank"),
	}
}

// Rank returns at most min(k, len(ids)) candidates from ids, nearest first.
// No embedding is requested when ids is empty.
func (r *Ranker) Rank(ctx context.Context, text string, ids []domain.ProductID, k int) (domain.Ranking, error) {
	if len(ids) == 0 || k <= 0 {
		return domain.Ranking{}, nil
	}

	query, err := r.embedder.EmbedSingle(ctx, text)
	r.metrics.RecordEmbedding(err)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ranking, err := r.store.Search(ctx, query, ids, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := restrict(ranking, ids, min(k, len(ids)))
	if dropped := len(ranking) - len(out); dropped > 0 {
		r.logger.WithContext(ctx).Warn().
			Int("dropped", dropped).
			Msg("Similarity store returned ids outside the candidate set")
	}
	return out, nil
}

// restrict keeps ranked entries whose id is allowed, once each, up to limit.
func restrict(ranking domain.Ranking, allow []domain.ProductID, limit int) domain.Ranking {
	allowed := make(map[domain.ProductID]struct{}, len(allow))
	for _, id := range allow {
		allowed[id] = struct{}{}
	}

	out := make(domain.Ranking, 0, min(len(ranking), limit))
	for _, s := range ranking {
		if len(out) == limit {
			break
		}
		if _, ok := allowed[s.ID]; !ok {
			continue
		}
		delete(allowed, s.ID)
		out = append(out, s)
	}
	return out
}
