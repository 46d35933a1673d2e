package rank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vector"
)

// fixedStore returns a canned ranking regardless of the query.
type fixedStore struct {
	vector.MemoryStore
	ranking domain.Ranking
	err     error
}

func (s *fixedStore) Search(ctx context.Context, query []float32, allow []domain.ProductID, k int) (domain.Ranking, error) {
	return s.ranking, s.err
}

func seededStore(t *testing.T, embedder *embedding.MockClient, names map[domain.ProductID]string) *vector.MemoryStore {
	t.Helper()
	store := vector.NewMemoryStore(embedder.Dimension())
	for id, name := range names {
		vec, err := embedder.EmbedSingle(context.Background(), name)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(context.Background(), []vector.Entry{{ID: id, Vector: vec}}))
	}
	return store
}

func TestRanker_EmptyCandidatesSkipEmbedding(t *testing.T) {
	embedder := embedding.NewMockClient(16)
	ranker := NewRanker(embedder, vector.NewMemoryStore(16), nil, nil)

	got, err := ranker.Rank(context.Background(), "사골곰탕", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, embedder.Calls())
}

func TestRanker_RanksCandidateSubset(t *testing.T) {
	embedder := embedding.NewMockClient(32)
	store := seededStore(t, embedder, map[domain.ProductID]string{
		1: "사골곰탕",
		2: "사골 곰탕 국물",
		3: "초코 쿠키",
		4: "사골곰탕",
	})
	metrics := observability.NewMetrics("rank_test")
	ranker := NewRanker(embedder, store, metrics, nil)

	got, err := ranker.Rank(context.Background(), "사골곰탕", []domain.ProductID{1, 2, 3}, 10)
	require.NoError(t, err)

	require.Len(t, got, 3, "length is min(k, candidates)")
	assert.Equal(t, domain.ProductID(1), got[0].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.NotContains(t, got.IDs(), domain.ProductID(4))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
	assert.Equal(t, 1, embedder.Calls())
}

func TestRanker_TruncatesToK(t *testing.T) {
	embedder := embedding.NewMockClient(8)
	store := seededStore(t, embedder, map[domain.ProductID]string{1: "가", 2: "나", 3: "다"})
	ranker := NewRanker(embedder, store, nil, nil)

	got, err := ranker.Rank(context.Background(), "가", []domain.ProductID{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRanker_FiltersForeignIDs(t *testing.T) {
	store := &fixedStore{ranking: domain.Ranking{
		{ID: 8, Distance: 0.1},
		{ID: 2, Distance: 0.2},
		{ID: 2, Distance: 0.2},
		{ID: 1, Distance: 0.3},
	}}
	ranker := NewRanker(embedding.NewMockClient(4), store, nil, nil)

	got, err := ranker.Rank(context.Background(), "x", []domain.ProductID{1, 2}, 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{2, 1}, got.IDs())
}

func TestRanker_Errors(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		embedder := embedding.NewMockClient(4)
		embedder.FailWith(errors.New("service down"))
		ranker := NewRanker(embedder, vector.NewMemoryStore(4), nil, nil)

		_, err := ranker.Rank(context.Background(), "x", []domain.ProductID{1}, 5)
		assert.ErrorContains(t, err, "embed query")
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fixedStore{err: errors.New("timeout")}
		ranker := NewRanker(embedding.NewMockClient(4), store, nil, nil)

		_, err := ranker.Rank(context.Background(), "x", []domain.ProductID{1}, 5)
		assert.ErrorContains(t, err, "similarity search")
	})
}
