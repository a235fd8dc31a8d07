package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleSyncer writes events to a Google Calendar using a service account.
type GoogleSyncer struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
}

func NewGoogleSyncer(ctx context.Context, credentialsJSON []byte, calendarID, timezone string) (*GoogleSyncer, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("google calendar client: %w", err)
	}
	return &GoogleSyncer{svc: svc, calendarID: calendarID, timezone: timezone}, nil
}

func (g *GoogleSyncer) CreateEvent(ctx context.Context, evt Event) (string, error) {
	event := &gcal.Event{
		Summary:     "Cita: " + evt.ServiceName,
		Description: fmt.Sprintf("Paciente: %s\nCita: %s", evt.PatientName, evt.AppointmentID),
		Start: &gcal.EventDateTime{
			DateTime: evt.StartAt.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: evt.EndAt.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		Attendees: []*gcal.EventAttendee{
			{Email: evt.PatientEmail, DisplayName: evt.PatientName},
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := g.svc.Events.Insert(g.calendarID, event).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("calendar returned no event id")
	}
	return created.Id, nil
}
