package availability

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
}

func TestCandidateSlots_Grid(t *testing.T) {
	d := day(t)
	windowStart := d.Add(9 * time.Hour)
	windowEnd := d.Add(18 * time.Hour)

	slots := CandidateSlots(windowStart, windowEnd, 30*time.Minute, 15*time.Minute)
	if len(slots) != 35 {
		t.Fatalf("expected 35 slots, got %d", len(slots))
	}
	if !slots[0].Equal(windowStart) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	last := slots[len(slots)-1]
	if !last.Equal(d.Add(17*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 17:30, got %s", last.Format(time.RFC3339))
	}
}

func TestCandidateSlots_BookingMayEndExactlyAtClose(t *testing.T) {
	d := day(t)
	windowStart := d.Add(9 * time.Hour)
	windowEnd := d.Add(18 * time.Hour)

	// 45-minute bookings: 17:15 ends exactly at 18:00 and must be offered;
	// 17:30 would end 18:15 and must not.
	slots := CandidateSlots(windowStart, windowEnd, 45*time.Minute, 15*time.Minute)
	last := slots[len(slots)-1]
	if !last.Equal(d.Add(17*time.Hour + 15*time.Minute)) {
		t.Fatalf("expected last slot 17:15, got %s", last.Format(time.RFC3339))
	}
	for _, s := range slots {
		if s.Add(45 * time.Minute).After(windowEnd) {
			t.Fatalf("slot %s runs past closing", s.Format(time.RFC3339))
		}
	}
}

func TestCandidateSlots_DurationRunsIntoFinalGridCell(t *testing.T) {
	d := day(t)
	windowStart := d.Add(9 * time.Hour)
	windowEnd := d.Add(18 * time.Hour)

	// A 25-minute booking at 17:30 ends 17:55, inside business hours. An
	// hour-granularity closing check would wrongly drop it.
	slots := CandidateSlots(windowStart, windowEnd, 25*time.Minute, 15*time.Minute)
	last := slots[len(slots)-1]
	if !last.Equal(d.Add(17*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 17:30, got %s", last.Format(time.RFC3339))
	}
}

func TestCandidateSlots_MalformedInputs(t *testing.T) {
	d := day(t)
	if got := CandidateSlots(d.Add(10*time.Hour), d.Add(9*time.Hour), 30*time.Minute, 15*time.Minute); got != nil {
		t.Fatalf("inverted window should yield nil, got %v", got)
	}
	if got := CandidateSlots(d.Add(9*time.Hour), d.Add(10*time.Hour), 0, 15*time.Minute); got != nil {
		t.Fatalf("zero duration should yield nil, got %v", got)
	}
	if got := CandidateSlots(d.Add(9*time.Hour), d.Add(10*time.Hour), 30*time.Minute, 0); got != nil {
		t.Fatalf("zero step should yield nil, got %v", got)
	}
}

func TestInterval_AbuttingDoesNotOverlap(t *testing.T) {
	d := day(t)
	a := Interval{Start: d.Add(10 * time.Hour), End: d.Add(10*time.Hour + 30*time.Minute)}
	b := Interval{Start: d.Add(10*time.Hour + 30*time.Minute), End: d.Add(11 * time.Hour)}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatal("back-to-back intervals must not overlap")
	}
	c := Interval{Start: d.Add(10*time.Hour + 29*time.Minute), End: d.Add(11 * time.Hour)}
	if !a.Overlaps(c) {
		t.Fatal("intervals sharing a minute must overlap")
	}
}

func TestFilter_BusyAndMinAdvance(t *testing.T) {
	d := day(t)
	candidates := CandidateSlots(d.Add(9*time.Hour), d.Add(18*time.Hour), 30*time.Minute, 15*time.Minute)
	busy := []Interval{
		{Start: d.Add(10 * time.Hour), End: d.Add(10*time.Hour + 30*time.Minute)},
	}
	earliest := d.Add(9*time.Hour + 20*time.Minute)

	free := Filter(candidates, 30*time.Minute, busy, earliest)

	for _, s := range free {
		if s.Before(earliest) {
			t.Fatalf("slot %s starts before minimum advance cutoff", s.Format(time.RFC3339))
		}
		if s.Equal(d.Add(9*time.Hour+45*time.Minute)) || s.Equal(d.Add(10*time.Hour)) || s.Equal(d.Add(10*time.Hour+15*time.Minute)) {
			t.Fatalf("slot %s overlaps the busy interval", s.Format(time.RFC3339))
		}
	}
	// 09:30 ends exactly when the busy interval starts and must survive.
	found := false
	for _, s := range free {
		if s.Equal(d.Add(9*time.Hour + 30*time.Minute)) {
			found = true
		}
	}
	if !found {
		t.Fatal("slot abutting a busy interval should be free")
	}
}

func TestFilter_Idempotent(t *testing.T) {
	d := day(t)
	candidates := CandidateSlots(d.Add(9*time.Hour), d.Add(18*time.Hour), 30*time.Minute, 15*time.Minute)
	busy := []Interval{
		{Start: d.Add(11 * time.Hour), End: d.Add(12 * time.Hour)},
	}
	earliest := d.Add(9 * time.Hour)

	once := Filter(candidates, 30*time.Minute, busy, earliest)
	twice := Filter(once, 30*time.Minute, busy, earliest)
	if len(once) != len(twice) {
		t.Fatalf("filter not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if !once[i].Equal(twice[i]) {
			t.Fatalf("filter not idempotent at index %d", i)
		}
	}
}

func TestIsIntervalFree(t *testing.T) {
	d := day(t)
	busy := []Interval{
		{Start: d.Add(14 * time.Hour), End: d.Add(14*time.Hour + 30*time.Minute)},
	}
	if IsIntervalFree(d.Add(14*time.Hour+15*time.Minute), 30*time.Minute, busy) {
		t.Fatal("overlapping interval reported free")
	}
	if !IsIntervalFree(d.Add(14*time.Hour+30*time.Minute), 30*time.Minute, busy) {
		t.Fatal("abutting interval reported busy")
	}
	if IsIntervalFree(d.Add(15*time.Hour), 0, nil) {
		t.Fatal("zero duration must not be bookable")
	}
}
