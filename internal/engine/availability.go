package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AvailableAt reports whether the provider can take a slot of duration d
// starting at start. The checks mirror how the floor actually works: a
// provider who opted out of transfers is never eligible, the slot has to sit
// inside that weekday's shift, clear of breaks, and clear of every other
// pending or active appointment. All interval comparisons are half-open so
// a slot ending exactly when another begins is not a conflict.
func (e *RosterEntry) AvailableAt(start time.Time, d time.Duration, excludeID uuid.UUID) bool {
	if !e.Provider.AcceptsTransfers {
		return false
	}

	end := start.Add(d)

	hours, ok := e.Hours[start.Weekday()]
	if !ok || !hours.IsActive {
		return false
	}
	shiftOpen, err := atClock(start, hours.Open)
	if err != nil {
		return false
	}
	shiftClose, err := atClock(start, hours.Close)
	if err != nil {
		return false
	}
	if start.Before(shiftOpen) || end.After(shiftClose) {
		return false
	}

	for _, b := range e.Breaks[start.Weekday()] {
		breakStart, err := atClock(start, b.Start)
		if err != nil {
			continue
		}
		breakEnd := breakStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
		if start.Before(breakEnd) && breakStart.Before(end) {
			return false
		}
	}

	for _, apt := range e.Queue {
		if apt.ID == excludeID {
			continue
		}
		if apt.Status.Terminal() {
			continue
		}
		if apt.Overlaps(start, d) {
			return false
		}
	}

	return true
}

// atClock pins an "HH:MM" wall-clock string onto ref's date and location.
func atClock(ref time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 3)
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("malformed clock value %q", clock)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock value %q", clock)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock value %q", clock)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return time.Time{}, fmt.Errorf("clock value %q out of range", clock)
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hh, mm, 0, 0, ref.Location()), nil
}
