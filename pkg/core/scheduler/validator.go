package scheduler

import (
	"fmt"
	"math"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// BalanceViolation reports one weekday whose load deviates from the weekly
// mean by more than the configured tolerance.
type BalanceViolation struct {
	// Day is the offending weekday index 0-6
	Day int

	// Load is the day's total prescribed-session count
	Load int

	// MeanLoad is total slots divided by seven
	MeanLoad float64

	// Tolerance is the configured maximum deviation
	Tolerance float64

	Description string
}

func (v BalanceViolation) Error() string {
	return v.Description
}

// ValidateBalance checks the scheduler's central contract: every weekday's
// load must lie within tolerance of the mean load. Total slot counts that
// are not a multiple of seven make exact equality impossible, which is why
// the tolerance, not equality, is the acceptance criterion.
func ValidateBalance(alloc model.WeeklyAllocation, tolerance float64) []BalanceViolation {
	mean := float64(alloc.TotalSlots()) / model.DaysPerWeek

	var violations []BalanceViolation
	for day, load := range alloc.DayCounts {
		deviation := math.Abs(float64(load) - mean)
		if deviation > tolerance {
			violations = append(violations, BalanceViolation{
				Day:         day,
				Load:        load,
				MeanLoad:    mean,
				Tolerance:   tolerance,
				Description: fmt.Sprintf("weekday %d carries %d slots, %.2f beyond the mean load %.2f (tolerance %.2f)",
					day, load, deviation, mean, tolerance),
			})
		}
	}

	return violations
}
