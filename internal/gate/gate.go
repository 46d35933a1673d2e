// Package gate narrows the candidate catalog to ids lexically related to a source product.
package gate

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

const (
	minKeywordLength = 2
	andTierKeywords  = 2
)

// Options configures a Gate.
type Options struct {
	// CompareStore adds the store name to the searched columns.
	CompareStore bool
}

// Gate runs the tiered keyword search over the candidate catalog.
type Gate struct {
	search  catalog.Searcher
	columns []catalog.Column
	logger  *observability.Logger
}

// New creates a gate over search.
func New(search catalog.Searcher, opts Options, logger *observability.Logger) *Gate {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cols := []catalog.Column{catalog.ColumnName}
	if opts.CompareStore {
		cols = append(cols, catalog.ColumnStore)
	}
	return &Gate{
		search:  search,
		columns: cols,
		logger:  logger.WithOperation("gate"),
	}
}

// Candidates searches with the must keywords (any, then the first two together when
// the any-search is thin), then tops up with optional keywords. The result holds at
// most limit distinct ids in first-seen order. On a search failure the ids found so
// far are discarded and the error is returned.
func (g *Gate) Candidates(ctx context.Context, must, optional []string, limit, minFloor int) (domain.CandidateList, error) {
	must = usable(must)
	optional = usable(optional)
	if limit <= 0 || (len(must) == 0 && len(optional) == 0) {
		return domain.CandidateList{}, nil
	}

	var found []domain.ProductID
	if len(must) > 0 {
		ids, err := g.run(ctx, catalog.MatchAny, must, limit)
		if err != nil {
			return g.fail(ctx, "must_any", must, optional, err)
		}
		found = ids
	}

	if len(found) < minFloor && len(must) >= andTierKeywords {
		ids, err := g.run(ctx, catalog.MatchAll, must[:andTierKeywords], limit)
		if err != nil {
			return g.fail(ctx, "must_all", must, optional, err)
		}
		if len(ids) > len(found) {
			found = ids
		}
	}

	// Full limit: rows already found are dropped by the dedupe below.
	if len(optional) > 0 && len(found) < limit {
		ids, err := g.run(ctx, catalog.MatchAny, optional, limit)
		if err != nil {
			return g.fail(ctx, "optional_any", must, optional, err)
		}
		found = append(found, ids...)
	}

	out := domain.CandidateList(domain.DedupeIDs(found, limit))
	g.logger.WithContext(ctx).Debug().
		Strs("must", must).
		Strs("optional", optional).
		Int("limit", limit).
		Int("candidates", len(out)).
		Msg("Gate finished")
	return out, nil
}

func (g *Gate) run(ctx context.Context, mode catalog.MatchMode, terms []string, limit int) ([]domain.ProductID, error) {
	return g.search.SearchIDs(ctx, catalog.Predicate{
		Mode:    mode,
		Terms:   terms,
		Columns: g.columns,
	}, limit)
}

func (g *Gate) fail(ctx context.Context, tier string, must, optional []string, err error) (domain.CandidateList, error) {
	g.logger.WithContext(ctx).Error().
		Err(err).
		Str("tier", tier).
		Strs("must", must).
		Strs("optional", optional).
		Msg("Candidate search failed")
	return domain.CandidateList{}, fmt.Errorf("gate %s: %w", tier, err)
}

func usable(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if utf8.RuneCountInString(t) >= minKeywordLength {
			out = append(out, t)
		}
	}
	return out
}

// Limit returns the gate size for a request: wider when few must keywords are
// available, since each keyword then has to carry more recall.
func Limit(candidateN, mustCount int) int {
	if mustCount <= 3 {
		return min(max(candidateN*2, 150), 300)
	}
	return max(candidateN*3, 300)
}

// MinFloor returns the AND-tier trigger for a request of k results.
func MinFloor(floor, k int) int {
	return max(floor, k)
}
