package availability

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("interval start must be before end")

// Validate reports ErrInvalidInterval unless Start < End.
func (i Interval) Validate() error {
	if !i.Start.Before(i.End) {
		return ErrInvalidInterval
	}
	return nil
}

// Overlaps uses half-open semantics: [09:00,10:00) and [10:00,11:00) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Booked is an existing appointment's interval on a room.
type Booked struct {
	ID int64
	Interval
}

// Conflicts returns the ids of existing bookings overlapping candidate.
// A non-zero excludeID is skipped so an appointment never conflicts with itself.
func Conflicts(candidate Interval, existing []Booked, excludeID int64) []int64 {
	var ids []int64
	for _, b := range existing {
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		if Overlaps(candidate, b.Interval) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// Busy strips ids so booked intervals can feed AvailableSlots.
func Busy(booked []Booked) []Interval {
	out := make([]Interval, 0, len(booked))
	for _, b := range booked {
		out = append(out, b.Interval)
	}
	return out
}

// DayWindow returns [day+opens, day+closes) for the calendar day of day.
func DayWindow(day time.Time, opens, closes time.Duration) Interval {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Interval{Start: midnight.Add(opens), End: midnight.Add(closes)}
}
