// Package calendar syncs confirmed appointments to the clinic's shared calendar.
package calendar

import (
	"context"
	"time"
)

type Event struct {
	AppointmentID string
	PatientName   string
	PatientEmail  string
	ServiceName   string
	StartAt       time.Time
	EndAt         time.Time
}

// Syncer pushes appointment events to an external calendar. Sync is best
// effort on the payment-webhook path: a failure there must not lose the
// payment confirmation. Transfer approval treats sync as required instead,
// since the admin can simply retry.
type Syncer interface {
	CreateEvent(ctx context.Context, evt Event) (eventID string, err error)
}

// Noop is used when calendar credentials are not configured.
type Noop struct{}

func (Noop) CreateEvent(context.Context, Event) (string, error) { return "", nil }
