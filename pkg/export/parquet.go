// Package export writes scored prescriptions to Parquet files for
// downstream analytics using github.com/parquet-go/parquet-go.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rgs-cdss/prescriber/pkg/db"
)

// PrescriptionRow is the flat-table form of a persisted prescription:
// patient, protocol, fit metrics, behavioural metrics, score and days.
type PrescriptionRow struct {
	ID         string `parquet:"id,snappy"`
	PatientID  int64  `parquet:"patient_id,snappy"`
	ProtocolID int64  `parquet:"protocol_id,snappy"`

	PPF       float64   `parquet:"ppf,snappy"`
	Contrib   []float64 `parquet:"contrib,list"`
	Adherence float64   `parquet:"adherence,snappy"`
	DMValue   float64   `parquet:"dm_value,snappy"`
	PEValue   float64   `parquet:"pe_value,snappy"`
	Usage     int32     `parquet:"usage,snappy"`
	Score     float64   `parquet:"score,snappy"`

	// Days holds weekday indices 0-6, sorted ascending
	Days []int32 `parquet:"days,list"`

	CreatedAt time.Time `parquet:"created_at,snappy"`
}

// WritePrescriptionsParquet writes prescription rows to a Parquet file.
func WritePrescriptionsParquet(prescriptions []db.Prescription, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[PrescriptionRow](file)

	rows := make([]PrescriptionRow, len(prescriptions))
	for i, p := range prescriptions {
		days := make([]int32, len(p.Days))
		for j, d := range p.Days {
			days[j] = int32(d)
		}

		rows[i] = PrescriptionRow{
			ID:         p.ID,
			PatientID:  p.PatientID,
			ProtocolID: p.ProtocolID,
			PPF:        p.PPF,
			Contrib:    p.Contrib,
			Adherence:  p.Adherence,
			DMValue:    p.DMValue,
			PEValue:    p.PEValue,
			Usage:      int32(p.Usage),
			Score:      p.Score,
			Days:       days,
			CreatedAt:  p.CreatedAt,
		}
	}

	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write prescription rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return nil
}
