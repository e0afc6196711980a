package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rgs-cdss/prescriber/internal/config"
)

// maxConcurrentPatients bounds the parallel per-patient pipelines. Each
// pipeline is independent and only reads the shared tables, so no further
// coordination is needed.
const maxConcurrentPatients = 8

// ScheduleAllPatients runs the full scoring-and-scheduling pipeline for
// every active patient. Patients are processed in parallel; the shared
// engine state is read-only.
func ScheduleAllPatients(
	ctx context.Context,
	store ClinicalStore,
	prescriptions PrescriptionStore,
	cfg *config.Config,
	logger *zap.Logger,
	weekStart time.Time,
	dryRun bool,
) ([]*ScheduleResult, error) {
	engine, err := NewEngine(ctx, store, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Fetching patients")
	patients, err := store.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patients: %w", err)
	}
	logger.Debug("Found patients", zap.Int("count", len(patients)))

	results := make([]*ScheduleResult, len(patients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPatients)

	for i, patientID := range patients {
		g.Go(func() error {
			result, err := engine.SchedulePatient(gctx, store, prescriptions, patientID, weekStart, dryRun)
			if err != nil {
				return fmt.Errorf("failed to schedule patient %d: %w", patientID, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
