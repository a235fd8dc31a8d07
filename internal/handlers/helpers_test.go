package handlers

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/dvillacreses/citasalud/internal/schedule"
)

const (
	testServiceID = "0b54df3e-9a44-4f7a-8a4e-0c8f53a1d101"
	testPatientID = "1c65ea4f-ab55-407b-9b5f-1d9064b2e202"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool failed: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSchedule mirrors the clinic defaults: Mon-Fri 09:00-18:00 Guayaquil
// time, 15-minute grid, 2h minimum advance, 90-day horizon, closed Dec 25.
func testSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	s, err := schedule.New(schedule.Config{
		OpenHour:       9,
		CloseHour:      18,
		WorkingDays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StepMinutes:    15,
		MinAdvance:     2 * time.Hour,
		MaxAdvanceDays: 90,
		ClosedDates:    []string{"2026-12-25"},
		Timezone:       "America/Guayaquil",
	})
	if err != nil {
		t.Fatalf("schedule.New failed: %v", err)
	}
	return s
}

func serviceRow(durationMinutes int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "description", "duration_minutes", "price_usd", "is_active", "created_at"}).
		AddRow(testServiceID, "Consulta general", "Consulta médica general", durationMinutes, 25.0, true, time.Now())
}

func patientRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "national_id", "first_name", "last_name", "birth_date", "gender", "email", "phone", "created_at"}).
		AddRow(testPatientID, "1714586540", "María", "Pérez", time.Date(1990, 5, 12, 0, 0, 0, 0, time.UTC), "female", "maria@example.com", "+593991234567", time.Now())
}

func emptyCommittedRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "service_id", "patient_id", "start_at", "end_at", "status", "payment_method"})
}
