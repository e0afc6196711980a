package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

func TestComposite_EqualWeightsSumComponents(t *testing.T) {
	m := model.PatientProtocolMetric{
		PPF:       0.632,
		Adherence: 0.986,
		DMValue:   1.0,
		PEValue:   1.0,
	}
	w := model.ScoringWeights{Fit: 1, Adherence: 1, Match: 1}

	// 0.632 + 0.986 + mean(1.0, 1.0)
	assert.InDelta(t, 2.618, Composite(m, w), 1e-12)
}

func TestComposite_ZeroWeightDisablesComponent(t *testing.T) {
	m := model.PatientProtocolMetric{
		PPF:       0.5,
		Adherence: 1.0,
		DMValue:   1.0,
		PEValue:   1.0,
	}

	w := model.ScoringWeights{Fit: 1, Adherence: 0, Match: 0}
	assert.InDelta(t, 0.5, Composite(m, w), 1e-12)

	w = model.ScoringWeights{Fit: 0, Adherence: 0, Match: 2}
	assert.InDelta(t, 2.0, Composite(m, w), 1e-12)
}

func TestComposite_Deterministic(t *testing.T) {
	m := model.PatientProtocolMetric{
		PPF:       0.097,
		Adherence: 1.0,
		DMValue:   0,
		PEValue:   0,
	}
	w := model.ScoringWeights{Fit: 1, Adherence: 1, Match: 1}

	first := Composite(m, w)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Composite(m, w))
	}
}

func TestValidateWeights_RejectsNegative(t *testing.T) {
	assert.Error(t, ValidateWeights(model.ScoringWeights{Fit: -1, Adherence: 1, Match: 1}))
	assert.Error(t, ValidateWeights(model.ScoringWeights{Fit: 1, Adherence: -0.1, Match: 1}))
	assert.NoError(t, ValidateWeights(model.ScoringWeights{Fit: 0, Adherence: 0, Match: 0}))
}

func TestScoreAll_PreservesMetricsAndOrder(t *testing.T) {
	metrics := []model.PatientProtocolMetric{
		{ProtocolID: 222, PPF: 0.6},
		{ProtocolID: 227, PPF: 0.1},
	}
	w := model.ScoringWeights{Fit: 1}

	scored := ScoreAll(metrics, w)

	assert.Len(t, scored, 2)
	assert.Equal(t, int64(222), scored[0].ProtocolID)
	assert.InDelta(t, 0.6, scored[0].Score, 1e-12)
	assert.Equal(t, int64(227), scored[1].ProtocolID)
	assert.InDelta(t, 0.1, scored[1].Score, 1e-12)
	assert.Empty(t, scored[0].Days)
}
