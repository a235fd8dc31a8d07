package schedule

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		OpenHour:       9,
		CloseHour:      18,
		WorkingDays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StepMinutes:    15,
		MinAdvance:     2 * time.Hour,
		MaxAdvanceDays: 90,
		ClosedDates:    []string{"2026-12-25"},
		Timezone:       "America/Guayaquil",
	}
}

func mustSchedule(t *testing.T) *Schedule {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.CloseHour = 9
	if _, err := New(cfg); err == nil {
		t.Fatal("close hour equal to open hour should fail")
	}

	cfg = testConfig()
	cfg.StepMinutes = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("zero step should fail")
	}

	cfg = testConfig()
	cfg.ClosedDates = []string{"25/12/2026"}
	if _, err := New(cfg); err == nil {
		t.Fatal("malformed closed date should fail")
	}

	cfg = testConfig()
	cfg.Timezone = "America/Nowhere"
	if _, err := New(cfg); err == nil {
		t.Fatal("unknown timezone should fail")
	}
}

func TestIsBookableDay(t *testing.T) {
	s := mustSchedule(t)

	monday, err := s.ParseDate("2026-09-07")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if !s.IsBookableDay(monday) {
		t.Fatal("monday should be bookable")
	}

	sunday, _ := s.ParseDate("2026-09-06")
	if s.IsBookableDay(sunday) {
		t.Fatal("sunday should not be bookable")
	}

	christmas, _ := s.ParseDate("2026-12-25")
	if s.IsBookableDay(christmas) {
		t.Fatal("configured closed date should not be bookable")
	}
}

func TestDayWindow(t *testing.T) {
	s := mustSchedule(t)
	date, _ := s.ParseDate("2026-09-07")
	open, close := s.DayWindow(date)

	if open.Hour() != 9 || close.Hour() != 18 {
		t.Fatalf("expected 09:00-18:00 window, got %s-%s", open, close)
	}
	if open.Location().String() != "America/Guayaquil" {
		t.Fatalf("window must be clinic-local, got %s", open.Location())
	}
	if close.Sub(open) != 9*time.Hour {
		t.Fatalf("expected 9h window, got %s", close.Sub(open))
	}
}

func TestWithinHorizon(t *testing.T) {
	s := mustSchedule(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, s.Location())

	near, _ := s.ParseDate("2026-09-07")
	if !s.WithinHorizon(near, now) {
		t.Fatal("date a week out should be within the horizon")
	}

	far, _ := s.ParseDate("2026-12-15")
	if s.WithinHorizon(far, now) {
		t.Fatal("date beyond 90 days should be outside the horizon")
	}
}

func TestEarliestStart(t *testing.T) {
	s := mustSchedule(t)
	now := time.Date(2026, 9, 7, 8, 0, 0, 0, s.Location())
	if got := s.EarliestStart(now); !got.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("expected earliest start 10:00, got %s", got)
	}
}
