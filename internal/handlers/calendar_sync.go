package handlers

import (
	"context"
	"log/slog"

	"github.com/dvillacreses/citasalud/internal/calendar"
	"github.com/dvillacreses/citasalud/internal/storage"
)

// syncConfirmedToCalendar pushes an appointment confirmed by the payment
// webhook to the external calendar. It runs after the confirming transaction
// has committed; failures are logged and left for manual follow-up, never
// surfaced to the payment provider.
func syncConfirmedToCalendar(ctx context.Context, appts *storage.AppointmentRepository, syncer calendar.Syncer, logger *slog.Logger, appointmentID string) {
	d, err := appts.GetDetail(ctx, appointmentID)
	if err != nil {
		logger.Warn("calendar sync skipped: appointment reload failed", "err", err, "appointment_id", appointmentID)
		return
	}
	eventID, err := syncer.CreateEvent(ctx, calendar.Event{
		AppointmentID: d.Appointment.ID,
		PatientName:   d.Patient.FirstName + " " + d.Patient.LastName,
		PatientEmail:  d.Patient.Email,
		ServiceName:   d.Service.Name,
		StartAt:       d.Appointment.StartAt,
		EndAt:         d.Appointment.EndAt,
	})
	if err != nil {
		logger.Warn("calendar sync failed", "err", err, "appointment_id", appointmentID)
		return
	}
	if eventID == "" {
		return
	}
	if err := appts.SetCalendarEventID(ctx, appointmentID, eventID); err != nil {
		logger.Warn("store calendar event id failed", "err", err, "appointment_id", appointmentID)
	}
}
