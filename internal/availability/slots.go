package availability

import "time"

// Interval is a half-open time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Intervals that
// merely touch at an endpoint do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// CandidateSlots enumerates grid-aligned start times within [windowStart, windowEnd)
// where a booking of the given duration still ends by windowEnd. The comparison is
// against the exact closing timestamp, so a booking may run into the final grid cell
// as long as it ends on or before closing.
//
// All times are expected to be in the same location (timezone). Malformed inputs
// yield nil.
func CandidateSlots(windowStart, windowEnd time.Time, duration, step time.Duration) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		slots = append(slots, t)
	}
	return slots
}

// Filter removes candidates that start before earliest or whose booking interval
// [t, t+duration) overlaps any busy interval. Output preserves the ascending order
// of candidates; callers rely on this for "earliest available" display.
func Filter(candidates []time.Time, duration time.Duration, busy []Interval, earliest time.Time) []time.Time {
	if duration <= 0 {
		return nil
	}
	var free []time.Time
	for _, t := range candidates {
		if t.Before(earliest) {
			continue
		}
		if overlapsAny(t, t.Add(duration), busy) {
			continue
		}
		free = append(free, t)
	}
	return free
}

// IsIntervalFree is the pre-commit conflict guard: it re-checks one requested
// interval against the live committed set just before insert. It closes the
// common-case race window only; the storage exclusion constraint is the
// authoritative mutual-exclusion mechanism.
func IsIntervalFree(start time.Time, duration time.Duration, busy []Interval) bool {
	if duration <= 0 {
		return false
	}
	return !overlapsAny(start, start.Add(duration), busy)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	candidate := Interval{Start: start, End: end}
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
