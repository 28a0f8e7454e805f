package services

import (
	"fmt"
	"time"
)

// BlackoutWindow is a daily wall-clock interval during which no launches
// happen. The window may cross midnight (23:00 to 05:00). A zero window never
// matches.
type BlackoutWindow struct {
	start   int // minutes since midnight
	end     int
	enabled bool
}

// ParseBlackoutWindow builds a window from two HH:MM strings. Both empty
// disables the window; one empty is a configuration error.
func ParseBlackoutWindow(startStr, endStr string) (BlackoutWindow, error) {
	if startStr == "" && endStr == "" {
		return BlackoutWindow{}, nil
	}
	if startStr == "" || endStr == "" {
		return BlackoutWindow{}, fmt.Errorf("blackout window needs both start and end, got %q and %q", startStr, endStr)
	}

	start, err := parseClock(startStr)
	if err != nil {
		return BlackoutWindow{}, fmt.Errorf("blackout start: %w", err)
	}
	end, err := parseClock(endStr)
	if err != nil {
		return BlackoutWindow{}, fmt.Errorf("blackout end: %w", err)
	}
	return BlackoutWindow{start: start, end: end, enabled: true}, nil
}

// Contains reports whether t falls inside the window. Start is inclusive,
// end exclusive.
func (w BlackoutWindow) Contains(t time.Time) bool {
	if !w.enabled {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	// Crosses midnight.
	return minute >= w.start || minute < w.end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
