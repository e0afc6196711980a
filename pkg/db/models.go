package db

import "time"

// Prescription is one persisted (patient, protocol, week) assignment row,
// the flat-table form of a scheduled recommendation.
type Prescription struct {
	ID         string
	PatientID  int64
	ProtocolID int64

	PPF       float64
	Contrib   []float64
	Adherence float64
	DMValue   float64
	PEValue   float64
	Usage     int
	Score     float64

	// Days holds the assigned weekday indices 0-6, sorted ascending
	Days []int

	// SessionDates are the concrete dates the weekdays expand to for the
	// prescribed week
	SessionDates []time.Time

	CreatedAt time.Time
}
