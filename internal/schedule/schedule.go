package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvillacreses/citasalud/libs/config"
)

const dateLayout = "2006-01-02"

// Config carries the clinic's booking rules. Hours are clock hours in the
// clinic's timezone; Close is exclusive (Close=18 means the last booking must
// end by 18:00).
type Config struct {
	OpenHour       int
	CloseHour      int
	WorkingDays    []time.Weekday
	StepMinutes    int
	MinAdvance     time.Duration
	MaxAdvanceDays int
	ClosedDates    []string // YYYY-MM-DD, clinic-local
	Timezone       string
}

// Schedule answers calendar-rule questions for the single clinic resource.
type Schedule struct {
	openHour       int
	closeHour      int
	workingDays    map[time.Weekday]bool
	step           time.Duration
	minAdvance     time.Duration
	maxAdvanceDays int
	closedDates    map[string]bool
	loc            *time.Location
}

func New(cfg Config) (*Schedule, error) {
	if cfg.OpenHour < 0 || cfg.OpenHour > 23 || cfg.CloseHour < 1 || cfg.CloseHour > 24 {
		return nil, fmt.Errorf("business hours out of range: open=%d close=%d", cfg.OpenHour, cfg.CloseHour)
	}
	if cfg.CloseHour <= cfg.OpenHour {
		return nil, fmt.Errorf("close hour %d must be after open hour %d", cfg.CloseHour, cfg.OpenHour)
	}
	if cfg.StepMinutes <= 0 || cfg.StepMinutes > 120 {
		return nil, fmt.Errorf("slot step must be 1-120 minutes (got %d)", cfg.StepMinutes)
	}
	if len(cfg.WorkingDays) == 0 {
		return nil, fmt.Errorf("at least one working day is required")
	}
	if cfg.MinAdvance < 0 {
		return nil, fmt.Errorf("minimum advance must not be negative")
	}
	if cfg.MaxAdvanceDays <= 0 {
		return nil, fmt.Errorf("maximum advance days must be positive (got %d)", cfg.MaxAdvanceDays)
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	working := make(map[time.Weekday]bool, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("invalid working day %d", d)
		}
		working[d] = true
	}

	closed := make(map[string]bool, len(cfg.ClosedDates))
	for _, raw := range cfg.ClosedDates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, err := time.ParseInLocation(dateLayout, raw, loc); err != nil {
			return nil, fmt.Errorf("invalid closed date %q: %w", raw, err)
		}
		closed[raw] = true
	}

	return &Schedule{
		openHour:       cfg.OpenHour,
		closeHour:      cfg.CloseHour,
		workingDays:    working,
		step:           time.Duration(cfg.StepMinutes) * time.Minute,
		minAdvance:     cfg.MinAdvance,
		maxAdvanceDays: cfg.MaxAdvanceDays,
		closedDates:    closed,
		loc:            loc,
	}, nil
}

// FromEnv builds the schedule from environment configuration. Defaults mirror
// the clinic's published hours: Mon-Fri 09:00-18:00, 15-minute grid, 2h minimum
// advance, 90-day booking horizon.
func FromEnv() (*Schedule, error) {
	return New(Config{
		OpenHour:       config.Int("BUSINESS_OPEN_HOUR", 9),
		CloseHour:      config.Int("BUSINESS_CLOSE_HOUR", 18),
		WorkingDays:    parseWeekdays(config.String("BUSINESS_WORKING_DAYS", "1,2,3,4,5")),
		StepMinutes:    config.Int("SLOT_STEP_MINUTES", 15),
		MinAdvance:     time.Duration(config.Int("MIN_ADVANCE_HOURS", 2)) * time.Hour,
		MaxAdvanceDays: config.Int("MAX_ADVANCE_DAYS", 90),
		ClosedDates:    splitList(config.String("CLOSED_DATES", "")),
		Timezone:       config.String("CLINIC_TIMEZONE", "America/Guayaquil"),
	})
}

// ParseDate parses a YYYY-MM-DD string as a clinic-local calendar date.
func (s *Schedule) ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(raw), s.loc)
}

// DayWindow returns the [open, close) business-hours window for the given date.
func (s *Schedule) DayWindow(date time.Time) (time.Time, time.Time) {
	d := date.In(s.loc)
	open := time.Date(d.Year(), d.Month(), d.Day(), s.openHour, 0, 0, 0, s.loc)
	close := time.Date(d.Year(), d.Month(), d.Day(), s.closeHour, 0, 0, 0, s.loc)
	return open, close
}

// IsBookableDay is false for configured closed dates and non-working weekdays.
// A false answer short-circuits the whole day to an empty slot list.
func (s *Schedule) IsBookableDay(date time.Time) bool {
	d := date.In(s.loc)
	if s.closedDates[d.Format(dateLayout)] {
		return false
	}
	return s.workingDays[d.Weekday()]
}

// WithinHorizon bounds how far forward a date may be requested.
func (s *Schedule) WithinHorizon(date, now time.Time) bool {
	limit := now.In(s.loc).AddDate(0, 0, s.maxAdvanceDays)
	open, _ := s.DayWindow(date)
	return !open.After(limit)
}

// EarliestStart is the minimum-advance-booking cutoff: no slot may start
// before it.
func (s *Schedule) EarliestStart(now time.Time) time.Time {
	return now.Add(s.minAdvance)
}

func (s *Schedule) Step() time.Duration {
	return s.step
}

func (s *Schedule) Location() *time.Location {
	return s.loc
}

func parseWeekdays(raw string) []time.Weekday {
	var days []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
