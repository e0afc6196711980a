package model

import "time"

// Weekday indices run 0 (Monday) through 6 (Sunday), matching the
// clinical platform's WEEKDAY_INDEX convention.
const DaysPerWeek = 7

// SessionRecord is one completed therapy session for a (patient, protocol)
// pair, as recorded by the clinical platform.
type SessionRecord struct {
	PatientID  int64
	ProtocolID int64

	// SessionID identifies the session; usage counts distinct sessions
	SessionID int64

	// StartedAt orders the record within its protocol's history
	StartedAt time.Time

	// AdherenceRatio is the fraction of the prescribed work the patient
	// completed in this session, expected in [0,1]
	AdherenceRatio float64

	// Completed marks sessions that qualify toward usage
	Completed bool
}

// TimeseriesSample is one timepoint from the continuous session stream,
// carrying difficulty-modulator and performance values.
type TimeseriesSample struct {
	PatientID  int64
	ProtocolID int64
	SessionID  int64

	RecordedAt time.Time

	// DMValue is the difficulty-modulator reading, expected in [0,1]
	DMValue float64

	// PEValue is the performance/experience reading, expected in [0,1]
	PEValue float64
}

// PatientProtocolMetric is the per-(patient, protocol) row produced by a
// scoring run. It is built fresh from raw inputs and never mutated after
// construction.
type PatientProtocolMetric struct {
	PatientID  int64
	ProtocolID int64

	// PPF is the protocol-patient fit in [0,1]
	PPF float64

	// Contrib decomposes PPF per clinical dimension; len(Contrib) equals
	// the configured dimension count and the entries sum to roughly PPF
	Contrib []float64

	// Adherence is the exponentially smoothed historical compliance in [0,1]
	Adherence float64

	// DMValue and PEValue are the smoothed difficulty-match and
	// patient-experience-match values in [0,1]
	DMValue float64
	PEValue float64

	// Usage counts qualifying historical sessions
	Usage int
}

// ScoredRecommendation is a metric row with its composite score and, after
// scheduling, the weekdays the protocol is prescribed on.
type ScoredRecommendation struct {
	PatientProtocolMetric

	// Score is the weighted composite of PPF, adherence and match values
	Score float64

	// Days holds distinct weekday indices 0-6, sorted ascending. Empty
	// until the scheduler has run; its length then equals the protocol's
	// target weekly frequency.
	Days []int
}

// ScoringWeights is the caller-supplied weight vector for the composite
// score. All weights must be non-negative; a zero weight disables its
// component.
type ScoringWeights struct {
	Fit       float64
	Adherence float64
	Match     float64
}

// SimilarityMatrix maps unordered protocol pairs to a similarity in [0,1].
// It is loaded once per run and treated as read-only.
type SimilarityMatrix map[ProtocolPair]float64

// ProtocolPair is the canonical (lower, higher) key of a protocol pair.
type ProtocolPair struct {
	A, B int64
}

// NewProtocolPair returns the canonical key for two protocols.
func NewProtocolPair(a, b int64) ProtocolPair {
	if a > b {
		a, b = b, a
	}
	return ProtocolPair{A: a, B: b}
}

// Similarity returns the similarity between two protocols. The diagonal is
// 1 and unknown pairs are 0.
func (m SimilarityMatrix) Similarity(a, b int64) float64 {
	if a == b {
		return 1
	}
	return m[NewProtocolPair(a, b)]
}

// WeeklyAllocation is the per-patient multiset union of all scheduled days.
type WeeklyAllocation struct {
	// DayCounts[d] is the number of prescribed sessions on weekday d
	DayCounts [DaysPerWeek]int
}

// TotalSlots returns the number of prescribed session slots in the week.
func (a *WeeklyAllocation) TotalSlots() int {
	total := 0
	for _, c := range a.DayCounts {
		total += c
	}
	return total
}

// MaxLoad returns the heaviest single-day load.
func (a *WeeklyAllocation) MaxLoad() int {
	m := a.DayCounts[0]
	for _, c := range a.DayCounts[1:] {
		if c > m {
			m = c
		}
	}
	return m
}

// MinLoad returns the lightest single-day load.
func (a *WeeklyAllocation) MinLoad() int {
	m := a.DayCounts[0]
	for _, c := range a.DayCounts[1:] {
		if c < m {
			m = c
		}
	}
	return m
}

// Clamp01 bounds v to [0,1]. All bounded metric scalars pass through it.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
