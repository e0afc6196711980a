package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/internal/config"
	"github.com/rgs-cdss/prescriber/pkg/core/features"
	"github.com/rgs-cdss/prescriber/pkg/core/model"
	"github.com/rgs-cdss/prescriber/pkg/core/scoring"
	"github.com/rgs-cdss/prescriber/pkg/core/selector"
)

// ScorePatient runs the scoring pipeline for one patient and returns the
// selected recommendation list, highest score first. A patient with no
// recommendable protocols yields an empty list, not an error.
func ScorePatient(
	ctx context.Context,
	store ClinicalStore,
	cfg *config.Config,
	logger *zap.Logger,
	patientID int64,
) ([]model.ScoredRecommendation, error) {
	engine, err := NewEngine(ctx, store, cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.ScorePatient(ctx, store, patientID)
}

// ScorePatient scores every protocol in the weight table for the given
// patient, then ranks, diversifies and truncates the list.
func (e *Engine) ScorePatient(ctx context.Context, store ClinicalStore, patientID int64) ([]model.ScoredRecommendation, error) {
	logger := e.logger.With(zap.Int64("patient_id", patientID))

	logger.Debug("Fetching session records")
	sessions, err := store.GetSessionRecords(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session records: %w", err)
	}
	logger.Debug("Found session records", zap.Int("count", len(sessions)))

	logger.Debug("Fetching timeseries samples")
	samples, err := store.GetTimeseriesSamples(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeseries samples: %w", err)
	}
	logger.Debug("Found timeseries samples", zap.Int("count", len(samples)))

	logger.Debug("Fetching assessment values")
	assessments, err := store.GetAssessmentValues(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessment values: %w", err)
	}
	logger.Debug("Found assessment values", zap.Int("count", len(assessments)))

	feats := features.Aggregate(features.AggregateInput{
		Sessions: sessions,
		Samples:  samples,
		Alpha:    e.cfg.Alpha,
	}, logger)

	patientValues := e.evaluator.PatientValues(assessments)

	// The weight table fixes the candidate universe; protocols without any
	// session history still get a row with zero behavioural signals.
	protocols := e.evaluator.Protocols()
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })

	metrics := make([]model.PatientProtocolMetric, 0, len(protocols))
	for _, protocolID := range protocols {
		ppf, contrib := e.evaluator.Evaluate(protocolID, patientValues)
		f := feats[protocolID]

		metrics = append(metrics, model.PatientProtocolMetric{
			PatientID:  patientID,
			ProtocolID: protocolID,
			PPF:        ppf,
			Contrib:    contrib,
			Adherence:  f.Adherence,
			DMValue:    f.DMValue,
			PEValue:    f.PEValue,
			Usage:      f.Usage,
		})
	}

	scored := scoring.ScoreAll(metrics, e.weights)

	selected := selector.Select(scored, selector.Options{
		MaxRecommendations:  e.cfg.MaxRecommendations,
		SimilarityThreshold: e.cfg.SimilarityThreshold,
		SimilarityPenalty:   e.cfg.SimilarityPenalty,
		Similarity:          e.similarity,
	})

	logger.Debug("Selected recommendations",
		zap.Int("candidates", len(scored)),
		zap.Int("selected", len(selected)))

	return selected, nil
}
