package db

import (
	"context"
	"fmt"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// ListPatients returns the IDs of all patients with an active prescription
// period, sorted ascending.
func (d *DB) ListPatients(ctx context.Context) ([]int64, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id FROM patient
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patient id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patients: %w", err)
	}

	return ids, nil
}

// GetSessionRecords returns a patient's session history ordered
// chronologically per protocol, as the feature aggregator requires.
func (d *DB) GetSessionRecords(ctx context.Context, patientID int64) ([]model.SessionRecord, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT patient_id, protocol_id, session_id, started_at, adherence_ratio, completed
		FROM session_record
		WHERE patient_id = $1
		ORDER BY protocol_id, started_at, session_id
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session records: %w", err)
	}
	defer rows.Close()

	var records []model.SessionRecord
	for rows.Next() {
		var r model.SessionRecord
		if err := rows.Scan(&r.PatientID, &r.ProtocolID, &r.SessionID, &r.StartedAt, &r.AdherenceRatio, &r.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session records: %w", err)
	}

	return records, nil
}

// GetTimeseriesSamples returns a patient's continuous samples ordered
// chronologically per protocol and session.
func (d *DB) GetTimeseriesSamples(ctx context.Context, patientID int64) ([]model.TimeseriesSample, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT patient_id, protocol_id, session_id, recorded_at, dm_value, pe_value
		FROM timeseries_sample
		WHERE patient_id = $1
		ORDER BY protocol_id, session_id, recorded_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeseries samples: %w", err)
	}
	defer rows.Close()

	var samples []model.TimeseriesSample
	for rows.Next() {
		var s model.TimeseriesSample
		if err := rows.Scan(&s.PatientID, &s.ProtocolID, &s.SessionID, &s.RecordedAt, &s.DMValue, &s.PEValue); err != nil {
			return nil, fmt.Errorf("failed to scan timeseries sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timeseries samples: %w", err)
	}

	return samples, nil
}

// GetAssessmentValues returns a patient's normalized assessment-scale values.
func (d *DB) GetAssessmentValues(ctx context.Context, patientID int64) (map[string]float64, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT scale, value
		FROM assessment_value
		WHERE patient_id = $1
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessment values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var scale string
		var value float64
		if err := rows.Scan(&scale, &value); err != nil {
			return nil, fmt.Errorf("failed to scan assessment value: %w", err)
		}
		values[scale] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assessment values: %w", err)
	}

	return values, nil
}

// GetProtocolDimensionWeights returns the static protocol -> dimension ->
// weight table. It is loaded once per run and shared read-only across all
// patient pipelines.
func (d *DB) GetProtocolDimensionWeights(ctx context.Context) (map[int64]map[string]float64, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT protocol_id, dimension, weight
		FROM protocol_dimension_weight
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query protocol dimension weights: %w", err)
	}
	defer rows.Close()

	table := make(map[int64]map[string]float64)
	for rows.Next() {
		var protocolID int64
		var dimension string
		var weight float64
		if err := rows.Scan(&protocolID, &dimension, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan protocol dimension weight: %w", err)
		}
		if table[protocolID] == nil {
			table[protocolID] = make(map[string]float64)
		}
		table[protocolID][dimension] = weight
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating protocol dimension weights: %w", err)
	}

	return table, nil
}

// GetProtocolSimilarity returns the symmetric protocol similarity matrix.
func (d *DB) GetProtocolSimilarity(ctx context.Context) (model.SimilarityMatrix, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT protocol_a, protocol_b, similarity
		FROM protocol_similarity
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query protocol similarity: %w", err)
	}
	defer rows.Close()

	matrix := make(model.SimilarityMatrix)
	for rows.Next() {
		var a, b int64
		var sim float64
		if err := rows.Scan(&a, &b, &sim); err != nil {
			return nil, fmt.Errorf("failed to scan protocol similarity: %w", err)
		}
		matrix[model.NewProtocolPair(a, b)] = sim
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating protocol similarity: %w", err)
	}

	return matrix, nil
}
