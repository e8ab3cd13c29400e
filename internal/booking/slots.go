package booking

import (
	"context"
	"sort"
	"time"
)

// GenerateSlots walks every calendar day in [from, to] and produces the
// candidate slots the source's windows allow, minus anything that intersects
// a busy interval. A slot touching the boundary of a busy interval is kept.
// The result is recomputed on every call; nothing is cached.
func GenerateSlots(ctx context.Context, src AvailabilitySource, from, to time.Time, loc *time.Location) ([]Slot, error) {
	busy, err := src.BusyIntervals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	step := src.SlotDuration()
	tz := loc.String()

	var slots []Slot
	for day := startOfDay(from.In(loc)); !day.After(to.In(loc)); day = day.AddDate(0, 0, 1) {
		windows, err := src.Windows(ctx, day)
		if err != nil {
			return nil, err
		}

		for _, w := range windows {
			for start := w.Start; ; start = start.Add(step) {
				end := start.Add(step)
				if end.After(w.End) {
					break
				}
				candidate := Interval{Start: start, End: end}
				if intersectsAny(candidate, busy) {
					continue
				}
				slots = append(slots, Slot{Start: start, End: end, Timezone: tz})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	return slots, nil
}

func intersectsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// weekBounds returns the Sunday 00:00 and Saturday 23:59:59 enclosing t,
// in t's location. Weeks run Sunday through Saturday.
func weekBounds(t time.Time) (time.Time, time.Time) {
	day := startOfDay(t)
	weekStart := day.AddDate(0, 0, -int(day.Weekday()))
	weekEnd := endOfDay(weekStart.AddDate(0, 0, 6))
	return weekStart, weekEnd
}
