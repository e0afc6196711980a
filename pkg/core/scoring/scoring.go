// Package scoring combines per-protocol metrics into a single composite
// score comparable within one patient's protocol set.
package scoring

import (
	"fmt"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// ValidateWeights rejects negative weight vectors. Rejection is fatal at
// pipeline start; a run with bad weights must not produce misleading scores.
func ValidateWeights(w model.ScoringWeights) error {
	if w.Fit < 0 || w.Adherence < 0 || w.Match < 0 {
		return fmt.Errorf("scoring weights must be non-negative, got fit=%v adherence=%v match=%v",
			w.Fit, w.Adherence, w.Match)
	}
	return nil
}

// Composite computes the weighted score for one metric row:
//
//	score = wFit*PPF + wAdherence*Adherence + wMatch*mean(DM, PE)
//
// Scores are only compared within a single patient's protocol set; there is
// no cross-patient normalization. Identical inputs and weights always yield
// an identical score.
func Composite(m model.PatientProtocolMetric, w model.ScoringWeights) float64 {
	match := (m.DMValue + m.PEValue) / 2
	return w.Fit*m.PPF + w.Adherence*m.Adherence + w.Match*match
}

// ScoreAll wraps each metric row in a ScoredRecommendation carrying its
// composite score. Days remain unassigned until the scheduler runs.
func ScoreAll(metrics []model.PatientProtocolMetric, w model.ScoringWeights) []model.ScoredRecommendation {
	scored := make([]model.ScoredRecommendation, 0, len(metrics))
	for _, m := range metrics {
		scored = append(scored, model.ScoredRecommendation{
			PatientProtocolMetric: m,
			Score:                 Composite(m, w),
		})
	}
	return scored
}
