package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vector"
)

const defaultIndexBatch = 64

// IndexCatalog embeds every candidate product name and upserts it into the vector
// store, one page of batch products at a time. progress, if set, receives the running
// total after each page. It returns the number of products indexed.
func (a *App) IndexCatalog(ctx context.Context, batch int, progress func(indexed int)) (int, error) {
	if batch <= 0 {
		batch = defaultIndexBatch
	}
	start := time.Now()
	logger := a.Logger.WithOperation("index_catalog")

	var (
		after   domain.ProductID
		indexed int
	)
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}

		page, err := a.Catalog.ListProducts(ctx, after, batch)
		if err != nil {
			return indexed, fmt.Errorf("list products after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		texts := make([]string, len(page))
		for i, r := range page {
			texts[i] = r.Name
		}
		vecs, err := a.Embedder.Embed(ctx, texts)
		a.Metrics.RecordEmbedding(err)
		if err != nil {
			return indexed, fmt.Errorf("embed page after %d: %w", after, err)
		}
		if len(vecs) != len(page) {
			return indexed, fmt.Errorf("embed page after %d: got %d vectors for %d products", after, len(vecs), len(page))
		}

		entries := make([]vector.Entry, len(page))
		for i, r := range page {
			entries[i] = vector.Entry{ID: r.ID, Vector: vecs[i]}
		}
		if err := a.Vectors.Upsert(ctx, entries); err != nil {
			return indexed, fmt.Errorf("upsert page after %d: %w", after, err)
		}

		indexed += len(page)
		after = page[len(page)-1].ID
		if progress != nil {
			progress(indexed)
		}
		if len(page) < batch {
			break
		}
	}

	logger.Info().
		Int("indexed", indexed).
		Since("duration", start).
		Msg("Catalog indexed")
	return indexed, nil
}
