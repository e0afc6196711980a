package db

import (
	"context"
	"fmt"
)

// InsertPrescriptions inserts prescription rows in a single transaction.
func (d *DB) InsertPrescriptions(ctx context.Context, prescriptions []Prescription) error {
	if len(prescriptions) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range prescriptions {
		_, err := tx.Exec(ctx, `
			INSERT INTO prescription (
				id, patient_id, protocol_id, ppf, contrib, adherence,
				dm_value, pe_value, usage_count, score, days, session_dates, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, p.ID, p.PatientID, p.ProtocolID, p.PPF, p.Contrib, p.Adherence,
			p.DMValue, p.PEValue, p.Usage, p.Score, p.Days, p.SessionDates, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert prescription for patient %d protocol %d: %w",
				p.PatientID, p.ProtocolID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit prescriptions: %w", err)
	}

	return nil
}

// GetPrescriptions returns all persisted prescription rows, most recent
// first, for export.
func (d *DB) GetPrescriptions(ctx context.Context) ([]Prescription, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, patient_id, protocol_id, ppf, contrib, adherence,
		       dm_value, pe_value, usage_count, score, days, session_dates, created_at
		FROM prescription
		ORDER BY created_at DESC, patient_id, protocol_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientID, &p.ProtocolID, &p.PPF, &p.Contrib, &p.Adherence,
			&p.DMValue, &p.PEValue, &p.Usage, &p.Score, &p.Days, &p.SessionDates, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prescriptions: %w", err)
	}

	return prescriptions, nil
}
