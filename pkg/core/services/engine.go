// Package services orchestrates the per-patient scoring-and-scheduling
// pipeline on top of the clinical store.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/internal/config"
	"github.com/rgs-cdss/prescriber/pkg/core/fit"
	"github.com/rgs-cdss/prescriber/pkg/core/model"
	"github.com/rgs-cdss/prescriber/pkg/core/scheduler"
)

// ClinicalStore defines the database operations the pipeline needs.
type ClinicalStore interface {
	ListPatients(ctx context.Context) ([]int64, error)
	GetSessionRecords(ctx context.Context, patientID int64) ([]model.SessionRecord, error)
	GetTimeseriesSamples(ctx context.Context, patientID int64) ([]model.TimeseriesSample, error)
	GetAssessmentValues(ctx context.Context, patientID int64) (map[string]float64, error)
	GetProtocolDimensionWeights(ctx context.Context) (map[int64]map[string]float64, error)
	GetProtocolSimilarity(ctx context.Context) (model.SimilarityMatrix, error)
}

// Engine bundles the run-level read-only state: the fit evaluator, the
// similarity matrix, scoring weights and the frequency mapper. It is built
// once per run and shared across all patient pipelines without locking,
// since nothing mutates it after construction.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	evaluator  *fit.Evaluator
	similarity model.SimilarityMatrix
	weights    model.ScoringWeights
	mapper     *scheduler.FrequencyMapper
}

// NewEngine validates the configuration against the scoring contract and
// loads the shared tables. Configuration problems reject the run here,
// before any patient is scored.
func NewEngine(ctx context.Context, store ClinicalStore, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	weights := model.ScoringWeights{
		Fit:       cfg.Weights.Fit,
		Adherence: cfg.Weights.Adherence,
		Match:     cfg.Weights.Match,
	}

	bands := make([]scheduler.FrequencyBand, len(cfg.FrequencyBands))
	for i, b := range cfg.FrequencyBands {
		bands[i] = scheduler.FrequencyBand{MinScore: b.MinScore, SlotsPerWeek: b.SlotsPerWeek}
	}
	mapper, err := scheduler.NewFrequencyMapper(bands, cfg.HighUsageSessions)
	if err != nil {
		return nil, fmt.Errorf("invalid frequency bands: %w", err)
	}

	dims, err := fit.NewDimensionIndex(cfg.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("invalid dimension configuration: %w", err)
	}

	logger.Debug("Fetching protocol dimension weights")
	weightTable, err := store.GetProtocolDimensionWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch protocol dimension weights: %w", err)
	}
	logger.Debug("Found protocol dimension weights", zap.Int("protocols", len(weightTable)))

	mappings := make([]fit.ScaleMapping, len(cfg.ScaleMappings))
	for i, m := range cfg.ScaleMappings {
		mappings[i] = fit.ScaleMapping{Scale: m.Scale, Dimensions: m.Dimensions}
	}
	evaluator, err := fit.NewEvaluator(dims, weightTable, mappings, fit.AggregateRule(cfg.AggregateRule))
	if err != nil {
		return nil, fmt.Errorf("failed to build fit evaluator: %w", err)
	}

	logger.Debug("Fetching protocol similarity matrix")
	similarity, err := store.GetProtocolSimilarity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch protocol similarity: %w", err)
	}
	logger.Debug("Found protocol similarity entries", zap.Int("pairs", len(similarity)))

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		evaluator:  evaluator,
		similarity: similarity,
		weights:    weights,
		mapper:     mapper,
	}, nil
}
