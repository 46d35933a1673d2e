package recommend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/gate"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/keywords"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/lexicon"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/overlap"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/rank"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vector"
)

// distanceRanker ranks ids by a fixed distance table.
type distanceRanker struct {
	mu       sync.Mutex
	distance map[domain.ProductID]float64
	calls    int
	err      error
}

func (r *distanceRanker) Rank(ctx context.Context, text string, ids []domain.ProductID, k int) (domain.Ranking, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := domain.Ranking{}
	for _, id := range ids {
		if d, ok := r.distance[id]; ok {
			out = append(out, domain.Scored{ID: id, Distance: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (r *distanceRanker) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubGate struct {
	ids   domain.CandidateList
	err   error
	panic bool
	limit int
	floor int
}

func (g *stubGate) Candidates(ctx context.Context, must, optional []string, limit, minFloor int) (domain.CandidateList, error) {
	g.limit, g.floor = limit, minFloor
	if g.panic {
		panic("search index corrupted")
	}
	return g.ids, g.err
}

type failingPopular struct{}

func (failingPopular) Popular(ctx context.Context, limit int) ([]domain.DisplayRecord, error) {
	return nil, errors.New("catalog offline")
}

func seedCatalog() *catalog.MemoryStore {
	m := catalog.NewMemoryStore()
	m.AddSource(100, "OO수제 사골곰탕 500g x 3")
	m.AddSource(300, "초코 쿠키")
	for _, r := range []domain.DisplayRecord{
		{ID: 1, Name: "XX 사골곰탕 국물 1kg", StoreName: "XX식품", Price: 10000, DiscountedPrice: 8000, ReviewCount: 10},
		{ID: 2, Name: "한우 사골 육수", StoreName: "한우마을", Price: 12000, ReviewCount: 50},
		{ID: 3, Name: "비비고 왕교자", StoreName: "CJ", Price: 9000, ReviewCount: 200},
		{ID: 4, Name: "진한 곰탕", StoreName: "OO수제", Price: 8000, ReviewCount: 5},
	} {
		m.AddProduct(r)
	}
	return m
}

func newTestOrchestrator(cat *catalog.MemoryStore, g CandidateGate, ranker Ranker) *Orchestrator {
	lex := lexicon.Default()
	extractor := keywords.NewExtractor(lex, keywords.DefaultOptions())
	if g == nil {
		g = gate.New(cat, gate.Options{}, nil)
	}
	return NewOrchestrator(Deps{
		Names:     cat,
		Popular:   cat,
		Extractor: extractor,
		Gate:      g,
		Ranker:    ranker,
		Joiner:    catalog.NewJoiner(cat),
		Filter:    overlap.NewFilter(extractor.Normalizer(), overlap.DefaultOptions()),
	}, DefaultOptions())
}

func productIDs(records []domain.DisplayRecord) []domain.ProductID {
	out := make([]domain.ProductID, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestOrchestrator_FullPipeline(t *testing.T) {
	cat := seedCatalog()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 2: 0.1, 4: 0.2}}
	o := newTestOrchestrator(cat, nil, ranker)

	res, err := o.Recommend(context.Background(), 100, 5)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{
		StateIdle, StateExtractingKeywords, StateGating, StateRanking,
		StateJoining, StateFiltering, StateTruncating, StateDone,
	}, res.Path)
	assert.Equal(t, "OO수제 사골곰탕 500g x 3", res.SourceName)
	assert.Contains(t, res.Keywords.Tail, "사골곰탕")

	// 4 and 1 each hit one tail term; distance decides, not catalog id.
	assert.Equal(t, []domain.ProductID{4, 1}, productIDs(res.Products))
	require.NotNil(t, res.Products[0].Distance)
	assert.InDelta(t, 0.2, *res.Products[0].Distance, 1e-9)
	assert.Equal(t, 8000, res.Products[1].DiscountedPrice)
	assert.Empty(t, res.FallbackReason)
}

func TestOrchestrator_TruncatesToK(t *testing.T) {
	cat := seedCatalog()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 2: 0.1, 4: 0.2}}
	o := newTestOrchestrator(cat, nil, ranker)

	res, err := o.Recommend(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{4}, productIDs(res.Products))
}

func TestOrchestrator_EmptyGateSkipsRanking(t *testing.T) {
	cat := seedCatalog()
	embedder := embedding.NewMockClient(8)
	ranker := rank.NewRanker(embedder, vector.NewMemoryStore(8), nil, nil)
	o := newTestOrchestrator(cat, nil, ranker)

	res, err := o.Recommend(context.Background(), 300, 5)
	require.NoError(t, err)

	assert.Equal(t, StateFallback, res.State)
	assert.Zero(t, embedder.Calls(), "ranker must not be invoked")
	assert.NotContains(t, res.Path, StateRanking)
	assert.Contains(t, res.FallbackReason, "empty_intermediate/gate")
	assert.Equal(t, []domain.ProductID{3, 2, 1, 4}, productIDs(res.Products), "most reviewed first")
}

func TestOrchestrator_FallbackOnStageFailure(t *testing.T) {
	tests := []struct {
		name   string
		gate   *stubGate
		ranker *distanceRanker
		reason string
	}{
		{
			name:   "gate error",
			gate:   &stubGate{err: errors.New("db down")},
			ranker: &distanceRanker{},
			reason: "upstream_unavailable/gate",
		},
		{
			name:   "gate panic",
			gate:   &stubGate{panic: true},
			ranker: &distanceRanker{},
			reason: "stage panicked",
		},
		{
			name:   "ranker error",
			gate:   &stubGate{ids: domain.CandidateList{1, 2}},
			ranker: &distanceRanker{err: errors.New("embedding timeout")},
			reason: "upstream_unavailable/rank",
		},
		{
			name:   "nothing ranked",
			gate:   &stubGate{ids: domain.CandidateList{1, 2}},
			ranker: &distanceRanker{distance: map[domain.ProductID]float64{}},
			reason: "empty_intermediate/rank",
		},
		{
			name:   "ranked ids have no records",
			gate:   &stubGate{ids: domain.CandidateList{98, 99}},
			ranker: &distanceRanker{distance: map[domain.ProductID]float64{98: 0.1, 99: 0.2}},
			reason: "empty_intermediate/join",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestOrchestrator(seedCatalog(), tc.gate, tc.ranker)

			var (
				res *Result
				err error
			)
			require.NotPanics(t, func() {
				res, err = o.Recommend(context.Background(), 100, 2)
			})
			require.NoError(t, err)
			assert.Equal(t, StateFallback, res.State)
			assert.Contains(t, res.FallbackReason, tc.reason)
			assert.Equal(t, []domain.ProductID{3, 2}, productIDs(res.Products))
		})
	}
}

type panickingNames struct{}

func (panickingNames) NameByID(ctx context.Context, id domain.ProductID) (string, error) {
	panic("driver bug")
}

func TestOrchestrator_NameLookupPanicFallsBack(t *testing.T) {
	ranker := &distanceRanker{}
	o := newTestOrchestrator(seedCatalog(), nil, ranker)
	o.deps.Names = panickingNames{}

	var (
		res *Result
		err error
	)
	require.NotPanics(t, func() {
		res, err = o.Recommend(context.Background(), 100, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, StateFallback, res.State)
	assert.Contains(t, res.FallbackReason, "upstream_unavailable/lookup")
	assert.Contains(t, res.FallbackReason, "driver bug")
	assert.Equal(t, []domain.ProductID{3, 2}, productIDs(res.Products))
	assert.Zero(t, ranker.Calls())
}

func TestOrchestrator_FallbackWithoutPopular(t *testing.T) {
	cat := seedCatalog()
	o := newTestOrchestrator(cat, &stubGate{err: errors.New("db down")}, &distanceRanker{})
	o.deps.Popular = failingPopular{}

	res, err := o.Recommend(context.Background(), 100, 5)
	require.NoError(t, err)
	assert.Equal(t, StateFallback, res.State)
	assert.NotNil(t, res.Products)
	assert.Empty(t, res.Products)
}

func TestOrchestrator_FilterMayEmptyTheResult(t *testing.T) {
	cat := seedCatalog()
	// Only 2 is ranked; it shares no tail term with the source.
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{2: 0.1}}
	o := newTestOrchestrator(cat, nil, ranker)

	res, err := o.Recommend(context.Background(), 100, 5)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Products)
}

func TestOrchestrator_GateSizing(t *testing.T) {
	g := &stubGate{}
	o := newTestOrchestrator(seedCatalog(), g, &distanceRanker{})

	_, err := o.Recommend(context.Background(), 100, 5)
	require.NoError(t, err)
	// four must keywords: OO수제, 사골곰탕, 곰탕, 사골
	assert.Equal(t, 450, g.limit)
	assert.Equal(t, 30, g.floor)

	_, err = o.Recommend(context.Background(), 100, 20)
	require.NoError(t, err)
	assert.Equal(t, 30, g.floor)
}

func TestOrchestrator_InvalidInput(t *testing.T) {
	o := newTestOrchestrator(seedCatalog(), nil, &distanceRanker{})
	ctx := context.Background()

	_, err := o.Recommend(ctx, 100, 0)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInvalidInput))

	_, err = o.Recommend(ctx, 100, -3)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInvalidInput))

	_, err = o.Recommend(ctx, 555, 5)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInvalidInput))
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = o.RecommendName(ctx, "   ", 5)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInvalidInput))
}

func TestOrchestrator_ClampsK(t *testing.T) {
	o := newTestOrchestrator(seedCatalog(), nil, &distanceRanker{})

	k, err := o.NormalizeK(50)
	require.NoError(t, err)
	assert.Equal(t, 20, k)

	k, err = o.NormalizeK(7)
	require.NoError(t, err)
	assert.Equal(t, 7, k)
}

func TestOrchestrator_RecommendName(t *testing.T) {
	cat := seedCatalog()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 2: 0.1, 4: 0.2}}
	o := newTestOrchestrator(cat, nil, ranker)

	res, err := o.RecommendName(context.Background(), "OO수제 사골곰탕 500g x 3", 5)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductID(0), res.SourceID)
	assert.Equal(t, []domain.ProductID{4, 1}, productIDs(res.Products))
}

func TestSortByDistance(t *testing.T) {
	records := []domain.DisplayRecord{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	got := sortByDistance(records, domain.SimilarityMap{3: 0.5, 1: 0.9, 4: 0.5})

	assert.Equal(t, []domain.ProductID{3, 4, 1, 2}, productIDs(got))
	assert.Nil(t, got[3].Distance)
}

func TestState_Text(t *testing.T) {
	text, err := StateFallback.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(text))

	var s State
	require.NoError(t, s.UnmarshalText([]byte("extracting_keywords")))
	assert.Equal(t, StateExtractingKeywords, s)
	assert.Error(t, s.UnmarshalText([]byte("sleeping")))

	assert.True(t, StateDone.Terminal())
	assert.False(t, StateJoining.Terminal())
	assert.Equal(t, "state(42)", State(42).String())
}
