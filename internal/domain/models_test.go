package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordSet_MustAndOptional(t *testing.T) {
	ks := KeywordSet{
		Core:   []string{"사골곰탕", "사골", "곰탕"},
		Tail:   []string{"수제", "사골곰탕", "사골", "곰탕"},
		Roots:  []string{"사골", "곰탕"},
		Ngrams: []string{"수제", "사골", "골곰", "사골"},
	}

	assert.Equal(t, []string{"수제", "사골곰탕", "사골", "곰탕"}, ks.Must(12))
	assert.Equal(t, []string{"수제", "사골곰탕"}, ks.Must(2))
	assert.Equal(t, []string{"수제", "사골", "골곰"}, ks.Optional(32))
}

func TestRanking_Views(t *testing.T) {
	r := Ranking{{ID: 7, Distance: 0.1}, {ID: 3, Distance: 0.4}}

	assert.Equal(t, []ProductID{7, 3}, r.IDs())
	assert.Equal(t, SimilarityMap{7: 0.1, 3: 0.4}, r.SimilarityMap())
}

func TestDedupeIDs(t *testing.T) {
	assert.Equal(t, []ProductID{3, 1, 2}, DedupeIDs([]ProductID{3, 1, 3, 2, 1}, 0))
	assert.Equal(t, []ProductID{3, 1}, DedupeIDs([]ProductID{3, 1, 3, 2, 1}, 2))
}

func TestParseProductID(t *testing.T) {
	id, err := ParseProductID("1042")
	require.NoError(t, err)
	assert.Equal(t, ProductID(1042), id)
	assert.Equal(t, "1042", id.String())

	_, err = ParseProductID("abc")
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeInvalidInput))
}

func TestError_Classification(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("rank: %w", UpstreamUnavailable("embedding service", base).AtStage("ranking"))

	assert.True(t, IsType(err, ErrorTypeUpstreamUnavailable))
	assert.False(t, IsType(err, ErrorTypeInvalidInput))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "[upstream_unavailable/ranking] embedding service")
}
