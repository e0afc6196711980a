// Package scheduler assigns each selected protocol a set of distinct
// weekdays whose size is its target weekly frequency, while keeping the
// per-day load balanced across all of a patient's protocols.
package scheduler

import (
	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// WeekState is the single mutable accumulator threaded through an entire
// per-patient scheduling pass. Every slot decision sees the cumulative
// global load, which is what makes the balance contract achievable; the
// historical imbalance came from assigning each protocol's days in
// isolation.
type WeekState struct {
	// DayCounts[d] is the current total load on weekday d
	DayCounts [model.DaysPerWeek]int

	// lastAssigned[d] is the step at which weekday d last received a
	// slot, -1 if never; used to break count ties deterministically
	lastAssigned [model.DaysPerWeek]int

	step int
}

// NewWeekState returns an empty accumulator.
func NewWeekState() *WeekState {
	s := &WeekState{}
	for d := range s.lastAssigned {
		s.lastAssigned[d] = -1
	}
	return s
}

// nextDay picks the unused weekday with the lowest current load. Ties go to
// the least-recently-assigned day, then to the lowest day index, so repeated
// runs never oscillate.
func (s *WeekState) nextDay(used *[model.DaysPerWeek]bool) int {
	best := -1
	for d := 0; d < model.DaysPerWeek; d++ {
		if used[d] {
			continue
		}
		if best == -1 {
			best = d
			continue
		}
		if s.DayCounts[d] < s.DayCounts[best] {
			best = d
			continue
		}
		if s.DayCounts[d] == s.DayCounts[best] && s.lastAssigned[d] < s.lastAssigned[best] {
			best = d
		}
	}
	return best
}

// assign records a slot on the given weekday, immediately visible to every
// subsequent decision.
func (s *WeekState) assign(day int) {
	s.DayCounts[day]++
	s.lastAssigned[day] = s.step
	s.step++
}

// Outcome is the result of scheduling one patient's recommendation list.
type Outcome struct {
	// Recommendations carry their assigned Days, in selector order
	Recommendations []model.ScoredRecommendation

	// Allocation is the final per-day load across all recommendations
	Allocation model.WeeklyAllocation

	// Violations lists days whose load breaches the balance tolerance.
	// A non-empty slice is a scheduler defect, not an ordinary result.
	Violations []BalanceViolation

	// Balanced reports whether the balance contract held
	Balanced bool
}

// Schedule processes recommendations in selector order (highest score
// first), greedily assigning each protocol its target number of distinct
// weekdays from the shared WeekState. An empty recommendation list yields an
// empty, balanced outcome.
func Schedule(recs []model.ScoredRecommendation, mapper *FrequencyMapper, tolerance float64) *Outcome {
	state := NewWeekState()

	scheduled := make([]model.ScoredRecommendation, len(recs))
	for i, rec := range recs {
		freq := mapper.TargetFrequency(rec)

		var used [model.DaysPerWeek]bool
		days := make([]int, 0, freq)
		for len(days) < freq {
			day := state.nextDay(&used)
			if day == -1 {
				break
			}
			state.assign(day)
			used[day] = true
			days = append(days, day)
		}

		sortDays(days)
		rec.Days = days
		scheduled[i] = rec
	}

	alloc := model.WeeklyAllocation{DayCounts: state.DayCounts}
	violations := ValidateBalance(alloc, tolerance)

	return &Outcome{
		Recommendations: scheduled,
		Allocation:      alloc,
		Violations:      violations,
		Balanced:        len(violations) == 0,
	}
}

// sortDays orders a small weekday set ascending without pulling in sort for
// at most seven elements.
func sortDays(days []int) {
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j] < days[j-1]; j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
}
