package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/internal/config"
	"github.com/rgs-cdss/prescriber/pkg/core/model"
	"github.com/rgs-cdss/prescriber/pkg/core/scheduler"
	"github.com/rgs-cdss/prescriber/pkg/db"
)

// PrescriptionStore persists scheduled prescriptions.
type PrescriptionStore interface {
	InsertPrescriptions(ctx context.Context, prescriptions []db.Prescription) error
}

// ScheduleResult is the outcome of scheduling one patient.
type ScheduleResult struct {
	PatientID int64

	// Recommendations carry their assigned Days, in selector order
	Recommendations []model.ScoredRecommendation

	// Allocation is the final per-day load
	Allocation model.WeeklyAllocation

	// Balanced reports whether the balance contract held; a false value
	// with Violations set is a scheduler defect, reported distinctly
	Balanced   bool
	Violations []scheduler.BalanceViolation
}

// SchedulePatient scores the patient, assigns weekdays to every selected
// protocol and, unless dryRun is set, persists the prescriptions with
// concrete dates for the week starting at weekStart.
func SchedulePatient(
	ctx context.Context,
	store ClinicalStore,
	prescriptions PrescriptionStore,
	cfg *config.Config,
	logger *zap.Logger,
	patientID int64,
	weekStart time.Time,
	dryRun bool,
) (*ScheduleResult, error) {
	engine, err := NewEngine(ctx, store, cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.SchedulePatient(ctx, store, prescriptions, patientID, weekStart, dryRun)
}

// SchedulePatient runs scoring plus weekly scheduling for one patient.
func (e *Engine) SchedulePatient(
	ctx context.Context,
	store ClinicalStore,
	prescriptions PrescriptionStore,
	patientID int64,
	weekStart time.Time,
	dryRun bool,
) (*ScheduleResult, error) {
	logger := e.logger.With(zap.Int64("patient_id", patientID))

	selected, err := e.ScorePatient(ctx, store, patientID)
	if err != nil {
		return nil, err
	}

	outcome := scheduler.Schedule(selected, e.mapper, e.cfg.BalanceTolerance)

	result := &ScheduleResult{
		PatientID:       patientID,
		Recommendations: outcome.Recommendations,
		Allocation:      outcome.Allocation,
		Balanced:        outcome.Balanced,
		Violations:      outcome.Violations,
	}

	if !outcome.Balanced {
		for _, v := range outcome.Violations {
			logger.Error("Balance contract violated", zap.String("violation", v.Description))
		}
	}

	logger.Debug("Scheduled recommendations",
		zap.Int("protocols", len(outcome.Recommendations)),
		zap.Int("total_slots", outcome.Allocation.TotalSlots()),
		zap.Bool("balanced", outcome.Balanced))

	if dryRun {
		logger.Debug("Dry run, skipping prescription insert")
		return result, nil
	}

	rows, err := buildPrescriptionRows(result, weekStart)
	if err != nil {
		return nil, err
	}
	if err := prescriptions.InsertPrescriptions(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to persist prescriptions: %w", err)
	}
	logger.Debug("Persisted prescriptions", zap.Int("count", len(rows)))

	return result, nil
}

// buildPrescriptionRows flattens a schedule result into prescription rows,
// expanding each weekday set into dated occurrences.
func buildPrescriptionRows(result *ScheduleResult, weekStart time.Time) ([]db.Prescription, error) {
	now := time.Now().UTC()

	rows := make([]db.Prescription, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		dates, err := ExpandWeekdayDates(weekStart, rec.Days)
		if err != nil {
			return nil, fmt.Errorf("failed to expand dates for protocol %d: %w", rec.ProtocolID, err)
		}

		rows = append(rows, db.Prescription{
			ID:           uuid.New().String(),
			PatientID:    rec.PatientID,
			ProtocolID:   rec.ProtocolID,
			PPF:          rec.PPF,
			Contrib:      rec.Contrib,
			Adherence:    rec.Adherence,
			DMValue:      rec.DMValue,
			PEValue:      rec.PEValue,
			Usage:        rec.Usage,
			Score:        rec.Score,
			Days:         rec.Days,
			SessionDates: dates,
			CreatedAt:    now,
		})
	}

	return rows, nil
}
