package pg

import (
	"strings"
	"time"

	"botfleet/internal/core/domain"
)

// weekdayAbbr maps Go weekdays to the two-letter Spanish abbreviations the
// DiasSemana column stores ("Lu,Ma,Mi,Ju,Vi").
var weekdayAbbr = map[time.Weekday]string{
	time.Monday:    "Lu",
	time.Tuesday:   "Ma",
	time.Wednesday: "Mi",
	time.Thursday:  "Ju",
	time.Friday:    "Vi",
	time.Saturday:  "Sa",
	time.Sunday:    "Do",
}

// scheduleRule is the recurrence part of an eligibility row. Every field is
// nullable because the assignment may not come from a schedule at all.
type scheduleRule struct {
	Kind         *string
	StartTime    *string // HH:MM:SS
	Tolerance    *int    // minutes
	WeekDays     *string
	DayOfMonth   *int
	SpecificDate *time.Time
}

// due reports whether the rule fires at now: the day component matches and
// now falls inside [start, start+tolerance). An assignment without a rule is
// always due; a rule with a broken start time or tolerance never is.
func (r scheduleRule) due(now time.Time) bool {
	if r.Kind == nil {
		return true
	}
	if r.StartTime == nil || r.Tolerance == nil {
		return false
	}
	start, err := time.Parse("15:04:05", *r.StartTime)
	if err != nil {
		if start, err = time.Parse("15:04", *r.StartTime); err != nil {
			return false
		}
	}

	switch domain.ScheduleKind(*r.Kind) {
	case domain.ScheduleKindDaily:
	case domain.ScheduleKindWeekly:
		if r.WeekDays == nil || !weekdayListed(*r.WeekDays, now.Weekday()) {
			return false
		}
	case domain.ScheduleKindMonthly:
		if r.DayOfMonth == nil || now.Day() != *r.DayOfMonth {
			return false
		}
	case domain.ScheduleKindOneTime:
		if r.SpecificDate == nil {
			return false
		}
		y1, m1, d1 := r.SpecificDate.Date()
		y2, m2, d2 := now.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	default:
		return false
	}

	startMin := start.Hour()*60 + start.Minute()
	nowMin := now.Hour()*60 + now.Minute()
	return nowMin >= startMin && nowMin < startMin+*r.Tolerance
}

func weekdayListed(list string, day time.Weekday) bool {
	abbr := weekdayAbbr[day]
	for _, p := range strings.Split(list, ",") {
		if strings.TrimSpace(p) == abbr {
			return true
		}
	}
	return false
}
