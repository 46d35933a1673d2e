package recommend

import (
	"context"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// Service puts the result cache in front of the orchestrator.
type Service struct {
	orchestrator *Orchestrator
	cache        *ResultCache
	logger       *observability.Logger
}

// NewService creates a service. cache may be nil to disable caching.
func NewService(orchestrator *Orchestrator, cache *ResultCache, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		orchestrator: orchestrator,
		cache:        cache,
		logger:       logger.WithOperation("recommend_service"),
	}
}

// Recommend serves from the cache when possible and caches non-empty completed results.
func (s *Service) Recommend(ctx context.Context, id domain.ProductID, k int) (*Result, error) {
	k, err := s.orchestrator.NormalizeK(k)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if products, ok := s.cache.Get(ctx, id, k); ok {
			return &Result{
				SourceID: id,
				Products: products,
				State:    StateDone,
				Path:     []State{StateDone},
				Cached:   true,
			}, nil
		}
	}

	return s.compute(ctx, id, k)
}

// Refresh recomputes a recommendation and overwrites its cache entry.
func (s *Service) Refresh(ctx context.Context, id domain.ProductID, k int) (*Result, error) {
	k, err := s.orchestrator.NormalizeK(k)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, id, k)
}

func (s *Service) compute(ctx context.Context, id domain.ProductID, k int) (*Result, error) {
	res, err := s.orchestrator.Recommend(ctx, id, k)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && res.State == StateDone && len(res.Products) > 0 {
		if err := s.cache.Set(ctx, id, k, res.Products); err != nil {
			s.logger.WithContext(ctx).Warn().Err(err).Product(int64(id)).Msg("Failed to cache recommendation")
		}
	}
	return res, nil
}

// Invalidate flushes cached recommendations for id, or all of them when id is nil.
func (s *Service) Invalidate(ctx context.Context, id *domain.ProductID) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Invalidate(ctx, id)
}

// Orchestrator returns the underlying orchestrator.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orchestrator
}
