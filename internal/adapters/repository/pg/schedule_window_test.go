package pg

import (
	"testing"
	"time"

	"botfleet/internal/core/domain"
)

func strp(s string) *string        { return &s }
func intp(i int) *int              { return &i }
func datep(t time.Time) *time.Time { return &t }

func TestScheduleRuleDue(t *testing.T) {
	// 2026-08-24 is a Monday.
	monday := func(h, m int) time.Time {
		return time.Date(2026, 8, 24, h, m, 0, 0, time.UTC)
	}
	daily := strp(string(domain.ScheduleKindDaily))
	weekly := strp(string(domain.ScheduleKindWeekly))
	monthly := strp(string(domain.ScheduleKindMonthly))
	oneTime := strp(string(domain.ScheduleKindOneTime))

	tests := []struct {
		name string
		rule scheduleRule
		now  time.Time
		want bool
	}{
		{
			name: "no schedule always due",
			rule: scheduleRule{},
			now:  monday(3, 0),
			want: true,
		},
		{
			name: "daily inside window",
			rule: scheduleRule{Kind: daily, StartTime: strp("08:00:00"), Tolerance: intp(15)},
			now:  monday(8, 10),
			want: true,
		},
		{
			name: "daily at start",
			rule: scheduleRule{Kind: daily, StartTime: strp("08:00:00"), Tolerance: intp(15)},
			now:  monday(8, 0),
			want: true,
		},
		{
			name: "daily at tolerance end",
			rule: scheduleRule{Kind: daily, StartTime: strp("08:00:00"), Tolerance: intp(15)},
			now:  monday(8, 15),
			want: false,
		},
		{
			name: "daily before start",
			rule: scheduleRule{Kind: daily, StartTime: strp("08:00:00"), Tolerance: intp(15)},
			now:  monday(7, 59),
			want: false,
		},
		{
			name: "weekly matching day",
			rule: scheduleRule{Kind: weekly, StartTime: strp("08:00:00"), Tolerance: intp(30), WeekDays: strp("Lu,Mi,Vi")},
			now:  monday(8, 5),
			want: true,
		},
		{
			name: "weekly wrong day",
			rule: scheduleRule{Kind: weekly, StartTime: strp("08:00:00"), Tolerance: intp(30), WeekDays: strp("Ma,Ju")},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "weekly without day list",
			rule: scheduleRule{Kind: weekly, StartTime: strp("08:00:00"), Tolerance: intp(30)},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "monthly matching day",
			rule: scheduleRule{Kind: monthly, StartTime: strp("08:00:00"), Tolerance: intp(30), DayOfMonth: intp(24)},
			now:  monday(8, 5),
			want: true,
		},
		{
			name: "monthly wrong day",
			rule: scheduleRule{Kind: monthly, StartTime: strp("08:00:00"), Tolerance: intp(30), DayOfMonth: intp(1)},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "one time matching date",
			rule: scheduleRule{Kind: oneTime, StartTime: strp("08:00:00"), Tolerance: intp(30), SpecificDate: datep(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))},
			now:  monday(8, 5),
			want: true,
		},
		{
			name: "one time other date",
			rule: scheduleRule{Kind: oneTime, StartTime: strp("08:00:00"), Tolerance: intp(30), SpecificDate: datep(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC))},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "broken start time never fires",
			rule: scheduleRule{Kind: daily, StartTime: strp("morning"), Tolerance: intp(30)},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "missing tolerance never fires",
			rule: scheduleRule{Kind: daily, StartTime: strp("08:00:00")},
			now:  monday(8, 5),
			want: false,
		},
		{
			name: "unknown kind never fires",
			rule: scheduleRule{Kind: strp("Cada5Minutos"), StartTime: strp("08:00:00"), Tolerance: intp(30)},
			now:  monday(8, 5),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.due(tt.now); got != tt.want {
				t.Errorf("due(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
