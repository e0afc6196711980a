// Package features derives smoothed behavioural signals per (patient,
// protocol) pair from raw session records and continuous timeseries samples.
package features

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// Features holds the behavioural signals for one protocol.
type Features struct {
	// Adherence is the exponentially smoothed session adherence in [0,1]
	Adherence float64

	// DMValue and PEValue are smoothed difficulty-modulator and
	// performance values in [0,1]
	DMValue float64
	PEValue float64

	// Usage counts qualifying sessions in the observation window
	Usage int
}

// AggregateInput contains the raw per-patient data for feature aggregation.
type AggregateInput struct {
	// Sessions must be chronologically ordered per protocol; records that
	// step backwards in time are dropped with a warning
	Sessions []model.SessionRecord

	// Samples must be chronologically ordered per protocol
	Samples []model.TimeseriesSample

	// Alpha is the EWMA smoothing factor in (0,1]; later observations
	// weigh more heavily
	Alpha float64
}

// ewma applies exponential smoothing seeded with the first sample:
// new = alpha*x + (1-alpha)*old.
type ewma struct {
	alpha  float64
	value  float64
	seeded bool
}

func (e *ewma) observe(x float64) {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
}

// Aggregate computes Features per protocol for a single patient. Malformed
// or out-of-range samples are dropped with a warning, never fatally; a
// protocol with no valid data simply has no entry in the result, and a
// patient with no valid sessions at all yields an empty map.
func Aggregate(input AggregateInput, logger *zap.Logger) map[int64]Features {
	adherence := make(map[int64]*ewma)
	usage := make(map[int64]int)
	lastStarted := make(map[int64]time.Time)

	for _, s := range input.Sessions {
		if !validRatio(s.AdherenceRatio) {
			logger.Warn("Dropping session with out-of-range adherence",
				zap.Int64("patient_id", s.PatientID),
				zap.Int64("protocol_id", s.ProtocolID),
				zap.Int64("session_id", s.SessionID),
				zap.Float64("adherence", s.AdherenceRatio))
			continue
		}

		// Smoothing weighs later sessions more heavily, so a record that
		// steps backwards in time would corrupt every value after it
		if last, ok := lastStarted[s.ProtocolID]; ok && s.StartedAt.Before(last) {
			logger.Warn("Dropping out-of-order session record",
				zap.Int64("patient_id", s.PatientID),
				zap.Int64("protocol_id", s.ProtocolID),
				zap.Int64("session_id", s.SessionID),
				zap.Time("started_at", s.StartedAt),
				zap.Time("previous_started_at", last))
			continue
		}
		lastStarted[s.ProtocolID] = s.StartedAt

		avg, ok := adherence[s.ProtocolID]
		if !ok {
			avg = &ewma{alpha: input.Alpha}
			adherence[s.ProtocolID] = avg
		}
		avg.observe(s.AdherenceRatio)

		if s.Completed {
			usage[s.ProtocolID]++
		}
	}

	dm, pe := smoothTimeseries(input, logger)

	result := make(map[int64]Features, len(adherence))
	for protocolID, avg := range adherence {
		result[protocolID] = Features{
			Adherence: model.Clamp01(avg.value),
			Usage:     usage[protocolID],
		}
	}

	// Protocols seen only in the timeseries stream still get an entry;
	// their adherence and usage stay zero (unattempted, not an error).
	for protocolID, v := range dm {
		f := result[protocolID]
		f.DMValue = model.Clamp01(v.value)
		result[protocolID] = f
	}
	for protocolID, v := range pe {
		f := result[protocolID]
		f.PEValue = model.Clamp01(v.value)
		result[protocolID] = f
	}

	return result
}

// smoothTimeseries reduces samples to per-session means of DM and PE, then
// smooths the session means with the same EWMA used for adherence.
func smoothTimeseries(input AggregateInput, logger *zap.Logger) (dm, pe map[int64]*ewma) {
	type sessionKey struct {
		protocolID int64
		sessionID  int64
	}
	type sessionMean struct {
		dmSum, peSum float64
		count        int
	}

	means := make(map[sessionKey]*sessionMean)
	var order []sessionKey

	for _, s := range input.Samples {
		if !validRatio(s.DMValue) || !validRatio(s.PEValue) {
			logger.Warn("Dropping malformed timeseries sample",
				zap.Int64("patient_id", s.PatientID),
				zap.Int64("protocol_id", s.ProtocolID),
				zap.Int64("session_id", s.SessionID),
				zap.Float64("dm_value", s.DMValue),
				zap.Float64("pe_value", s.PEValue))
			continue
		}

		key := sessionKey{protocolID: s.ProtocolID, sessionID: s.SessionID}
		m, ok := means[key]
		if !ok {
			m = &sessionMean{}
			means[key] = m
			order = append(order, key)
		}
		m.dmSum += s.DMValue
		m.peSum += s.PEValue
		m.count++
	}

	dm = make(map[int64]*ewma)
	pe = make(map[int64]*ewma)

	// order preserves the chronological session sequence of the input
	for _, key := range order {
		m := means[key]

		dmAvg, ok := dm[key.protocolID]
		if !ok {
			dmAvg = &ewma{alpha: input.Alpha}
			dm[key.protocolID] = dmAvg
		}
		dmAvg.observe(m.dmSum / float64(m.count))

		peAvg, ok := pe[key.protocolID]
		if !ok {
			peAvg = &ewma{alpha: input.Alpha}
			pe[key.protocolID] = peAvg
		}
		peAvg.observe(m.peSum / float64(m.count))
	}

	return dm, pe
}

func validRatio(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}
