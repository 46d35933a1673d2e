package recommend

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// WarmResult is the outcome of warming one source product.
type WarmResult struct {
	ID    domain.ProductID
	State State
	Count int
	Err   error
}

// Warmer recomputes recommendations for many source products in parallel.
type Warmer struct {
	service    *Service
	maxWorkers int
	timeout    time.Duration
	logger     *observability.Logger
}

// NewWarmer creates a warmer.
func NewWarmer(service *Service, maxWorkers int, timeout time.Duration, logger *observability.Logger) *Warmer {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Warmer{
		service:    service,
		maxWorkers: maxWorkers,
		timeout:    timeout,
		logger:     logger.WithOperation("warm"),
	}
}

// Warm refreshes the cache entry of every id for k. Per-id failures are reported in
// the results, not returned. progress, if set, is called once per finished id from
// worker goroutines.
func (w *Warmer) Warm(ctx context.Context, ids []domain.ProductID, k int, progress func(WarmResult)) ([]WarmResult, error) {
	results := make([]WarmResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(warmCtx)
	g.SetLimit(w.maxWorkers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = WarmResult{ID: id, Err: err}
				return nil
			}
			res, err := w.service.Refresh(gctx, id, k)
			wr := WarmResult{ID: id, Err: err}
			if res != nil {
				wr.State = res.State
				wr.Count = len(res.Products)
			}
			results[i] = wr
			if progress != nil {
				progress(wr)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := warmCtx.Err(); err != nil {
		return results, fmt.Errorf("warm-up stopped after %v: %w", w.timeout, err)
	}

	done, fallback, failed := 0, 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.State == StateFallback:
			fallback++
		default:
			done++
		}
	}
	w.logger.WithContext(ctx).Info().
		Int("total", len(ids)).
		Int("done", done).
		Int("fallback", fallback).
		Int("failed", failed).
		Msg("Cache warm-up finished")
	return results, nil
}
