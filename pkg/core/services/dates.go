package services

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// rruleWeekdays maps the platform's weekday indices (0 = Monday) onto rrule
// weekdays.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// ExpandWeekdayDates turns a weekday index set into concrete session dates
// within the week starting at weekStart. weekStart must fall on a Monday so
// indices line up with calendar days.
func ExpandWeekdayDates(weekStart time.Time, days []int) ([]time.Time, error) {
	if len(days) == 0 {
		return nil, nil
	}
	if weekStart.Weekday() != time.Monday {
		return nil, fmt.Errorf("week start %s is not a Monday", weekStart.Format("2006-01-02"))
	}

	byweekday := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("weekday index %d outside 0-6", d)
		}
		byweekday = append(byweekday, rruleWeekdays[d])
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Wkst:      rrule.MO,
		Dtstart:   weekStart,
		Count:     len(days),
		Byweekday: byweekday,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule: %w", err)
	}

	return rule.All(), nil
}

// NextMonday returns the Monday strictly after the given time, at midnight
// UTC, i.e. the start of the next prescription week.
func NextMonday(from time.Time) time.Time {
	t := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return t.AddDate(0, 0, offset)
}
