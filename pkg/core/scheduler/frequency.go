package scheduler

import (
	"fmt"
	"sort"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// FrequencyBand maps a minimum composite score to a weekly slot count.
type FrequencyBand struct {
	// MinScore is the inclusive lower score bound for this band
	MinScore float64

	// SlotsPerWeek is the number of distinct weekdays assigned, 1-7
	SlotsPerWeek int
}

// FrequencyMapper converts a recommendation's score and usage into its
// target weekly frequency via configured bands. The mapping is monotonic:
// higher scores never receive fewer slots.
type FrequencyMapper struct {
	// bands sorted by MinScore descending
	bands []FrequencyBand

	// highUsageSessions grants one extra weekly slot to protocols at or
	// above this historical session count; 0 disables the bonus
	highUsageSessions int
}

// NewFrequencyMapper validates the bands and builds a mapper. At least one
// band must cover score 0 so every selected protocol receives a frequency.
func NewFrequencyMapper(bands []FrequencyBand, highUsageSessions int) (*FrequencyMapper, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("no frequency bands configured")
	}
	if highUsageSessions < 0 {
		return nil, fmt.Errorf("highUsageSessions must be non-negative, got %d", highUsageSessions)
	}

	sorted := append([]FrequencyBand(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinScore > sorted[j].MinScore
	})

	for i, band := range sorted {
		if band.MinScore < 0 {
			return nil, fmt.Errorf("frequency band %d has negative minScore %v", i, band.MinScore)
		}
		if band.SlotsPerWeek < 1 || band.SlotsPerWeek > model.DaysPerWeek {
			return nil, fmt.Errorf("frequency band %d has slotsPerWeek %d outside 1-%d",
				i, band.SlotsPerWeek, model.DaysPerWeek)
		}
		if i > 0 && band.SlotsPerWeek > sorted[i-1].SlotsPerWeek {
			return nil, fmt.Errorf("frequency bands are not monotonic: score %v maps to %d slots but score %v maps to %d",
				band.MinScore, band.SlotsPerWeek, sorted[i-1].MinScore, sorted[i-1].SlotsPerWeek)
		}
	}

	if sorted[len(sorted)-1].MinScore != 0 {
		return nil, fmt.Errorf("frequency bands must include a band with minScore 0")
	}

	return &FrequencyMapper{bands: sorted, highUsageSessions: highUsageSessions}, nil
}

// TargetFrequency returns the number of distinct weekdays to assign to a
// recommendation. Frequencies beyond the number of weekdays clamp to 7.
func (m *FrequencyMapper) TargetFrequency(rec model.ScoredRecommendation) int {
	slots := 1
	for _, band := range m.bands {
		if rec.Score >= band.MinScore {
			slots = band.SlotsPerWeek
			break
		}
	}

	if m.highUsageSessions > 0 && rec.Usage >= m.highUsageSessions {
		slots++
	}

	if slots > model.DaysPerWeek {
		slots = model.DaysPerWeek
	}
	return slots
}
