// Package selector ranks a patient's scored protocols, discounts
// near-duplicates via the similarity matrix, and truncates the list to the
// configured recommendation size.
package selector

import (
	"sort"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// Options control selection for one patient.
type Options struct {
	// MaxRecommendations is the upper bound K on the returned list
	MaxRecommendations int

	// SimilarityThreshold is the similarity above which a lower-ranked
	// candidate counts as a near-duplicate of an accepted one
	SimilarityThreshold float64

	// SimilarityPenalty is the score discount fraction in [0,1] applied to
	// near-duplicates; 1 removes them outright
	SimilarityPenalty float64

	// Similarity is the read-only protocol similarity matrix; nil disables
	// diversification
	Similarity model.SimilarityMatrix
}

// Select orders candidates by score descending (ties broken by ascending
// protocol ID so output is reproducible), applies the near-duplicate
// discount in rank order, and returns a prefix of at most K entries with
// nonzero score. Higher-ranked items are never displaced by later
// near-duplicates: a discounted candidate is re-inserted at its new rank and
// reconsidered from there.
func Select(candidates []model.ScoredRecommendation, opts Options) []model.ScoredRecommendation {
	remaining := append([]model.ScoredRecommendation(nil), candidates...)
	sortByRank(remaining)

	selected := make([]model.ScoredRecommendation, 0, opts.MaxRecommendations)

	// Each candidate is discounted at most once; afterwards it competes at
	// its reduced score.
	discounted := make(map[int64]bool)

	for len(remaining) > 0 && len(selected) < opts.MaxRecommendations {
		candidate := remaining[0]
		remaining = remaining[1:]

		if candidate.Score <= 0 {
			// The list is sorted, so nothing after this scores higher
			break
		}

		if opts.Similarity != nil && opts.SimilarityPenalty > 0 && !discounted[candidate.ProtocolID] {
			if dup, penalized := discountNearDuplicate(candidate, selected, opts); dup {
				discounted[candidate.ProtocolID] = true
				if penalized.Score <= 0 {
					continue
				}
				remaining = reinsert(remaining, penalized)
				continue
			}
		}

		selected = append(selected, candidate)
	}

	return selected
}

// discountNearDuplicate checks the candidate against every accepted protocol
// and, on the first similarity above threshold, returns the candidate with
// its score discounted.
func discountNearDuplicate(
	candidate model.ScoredRecommendation,
	selected []model.ScoredRecommendation,
	opts Options,
) (bool, model.ScoredRecommendation) {
	for _, accepted := range selected {
		sim := opts.Similarity.Similarity(candidate.ProtocolID, accepted.ProtocolID)
		if sim > opts.SimilarityThreshold {
			candidate.Score *= 1 - opts.SimilarityPenalty
			return true, candidate
		}
	}
	return false, candidate
}

// reinsert places a re-scored candidate back into the ranked remainder at
// its new position, preserving the canonical tie-break order.
func reinsert(remaining []model.ScoredRecommendation, candidate model.ScoredRecommendation) []model.ScoredRecommendation {
	insertIdx := len(remaining)
	for i, other := range remaining {
		if ranksBefore(candidate, other) {
			insertIdx = i
			break
		}
	}

	remaining = append(remaining, model.ScoredRecommendation{})
	copy(remaining[insertIdx+1:], remaining[insertIdx:])
	remaining[insertIdx] = candidate
	return remaining
}

func sortByRank(recs []model.ScoredRecommendation) {
	sort.Slice(recs, func(i, j int) bool {
		return ranksBefore(recs[i], recs[j])
	})
}

// ranksBefore is the canonical ordering: score descending, then protocol ID
// ascending for deterministic tie-breaks.
func ranksBefore(a, b model.ScoredRecommendation) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ProtocolID < b.ProtocolID
}
