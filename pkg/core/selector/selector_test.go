package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

func rec(protocolID int64, score float64) model.ScoredRecommendation {
	return model.ScoredRecommendation{
		PatientProtocolMetric: model.PatientProtocolMetric{ProtocolID: protocolID},
		Score:                 score,
	}
}

func protocolIDs(recs []model.ScoredRecommendation) []int64 {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ProtocolID
	}
	return ids
}

func TestSelect_OrdersByScoreDescending(t *testing.T) {
	candidates := []model.ScoredRecommendation{
		rec(227, 1.097),
		rec(222, 2.618),
		rec(230, 1.5),
	}

	selected := Select(candidates, Options{MaxRecommendations: 10})

	assert.Equal(t, []int64{222, 230, 227}, protocolIDs(selected))
}

func TestSelect_TiesBreakByProtocolIDAscending(t *testing.T) {
	candidates := []model.ScoredRecommendation{
		rec(300, 1.0),
		rec(100, 1.0),
		rec(200, 1.0),
	}

	selected := Select(candidates, Options{MaxRecommendations: 10})

	assert.Equal(t, []int64{100, 200, 300}, protocolIDs(selected))
}

func TestSelect_TruncatesToMaxRecommendations(t *testing.T) {
	candidates := []model.ScoredRecommendation{
		rec(1, 5), rec(2, 4), rec(3, 3), rec(4, 2), rec(5, 1),
	}

	selected := Select(candidates, Options{MaxRecommendations: 3})

	assert.Equal(t, []int64{1, 2, 3}, protocolIDs(selected))
}

func TestSelect_DropsZeroScoresWithoutPadding(t *testing.T) {
	candidates := []model.ScoredRecommendation{
		rec(1, 2.0),
		rec(2, 0),
		rec(3, 0),
	}

	selected := Select(candidates, Options{MaxRecommendations: 5})

	assert.Equal(t, []int64{1}, protocolIDs(selected))
}

func TestSelect_EmptyInputYieldsEmptyList(t *testing.T) {
	selected := Select(nil, Options{MaxRecommendations: 5})
	assert.Empty(t, selected)
}

func TestSelect_DiscountsNearDuplicates(t *testing.T) {
	similarity := model.SimilarityMatrix{
		model.NewProtocolPair(1, 2): 0.95,
	}

	candidates := []model.ScoredRecommendation{
		rec(1, 2.0),
		rec(2, 1.9), // near-duplicate of 1
		rec(3, 1.5),
	}

	selected := Select(candidates, Options{
		MaxRecommendations:  3,
		SimilarityThreshold: 0.8,
		SimilarityPenalty:   0.5,
		Similarity:          similarity,
	})

	// Protocol 2 is discounted to 0.95 and drops behind protocol 3
	require.Len(t, selected, 3)
	assert.Equal(t, []int64{1, 3, 2}, protocolIDs(selected))
	assert.InDelta(t, 0.95, selected[2].Score, 1e-12)
}

func TestSelect_FullPenaltySkipsNearDuplicates(t *testing.T) {
	similarity := model.SimilarityMatrix{
		model.NewProtocolPair(1, 2): 0.95,
	}

	candidates := []model.ScoredRecommendation{
		rec(1, 2.0),
		rec(2, 1.9),
		rec(3, 1.5),
	}

	selected := Select(candidates, Options{
		MaxRecommendations:  3,
		SimilarityThreshold: 0.8,
		SimilarityPenalty:   1.0,
		Similarity:          similarity,
	})

	assert.Equal(t, []int64{1, 3}, protocolIDs(selected))
}

func TestSelect_HigherRankedItemsNeverDisplaced(t *testing.T) {
	// 2 is similar to 1 but scores lower; 1 must stay first regardless
	similarity := model.SimilarityMatrix{
		model.NewProtocolPair(1, 2): 0.99,
	}

	candidates := []model.ScoredRecommendation{
		rec(2, 1.9),
		rec(1, 2.0),
	}

	selected := Select(candidates, Options{
		MaxRecommendations:  2,
		SimilarityThreshold: 0.8,
		SimilarityPenalty:   0.3,
		Similarity:          similarity,
	})

	require.NotEmpty(t, selected)
	assert.Equal(t, int64(1), selected[0].ProtocolID)
	assert.Equal(t, 2.0, selected[0].Score)
}

func TestSelect_DiscountAppliedOnlyOnce(t *testing.T) {
	similarity := model.SimilarityMatrix{
		model.NewProtocolPair(1, 2): 0.95,
	}

	candidates := []model.ScoredRecommendation{
		rec(1, 2.0),
		rec(2, 1.9),
	}

	selected := Select(candidates, Options{
		MaxRecommendations:  2,
		SimilarityThreshold: 0.8,
		SimilarityPenalty:   0.5,
		Similarity:          similarity,
	})

	require.Len(t, selected, 2)
	assert.InDelta(t, 0.95, selected[1].Score, 1e-12)
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	candidates := []model.ScoredRecommendation{
		rec(2, 1.0),
		rec(1, 2.0),
	}

	Select(candidates, Options{MaxRecommendations: 2})

	assert.Equal(t, int64(2), candidates[0].ProtocolID)
	assert.Equal(t, int64(1), candidates[1].ProtocolID)
}
