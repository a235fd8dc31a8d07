package model

import "time"

type AppointmentStatus string

const (
	StatusPending          AppointmentStatus = "pending"
	StatusConfirmed        AppointmentStatus = "confirmed"
	StatusAwaitingTransfer AppointmentStatus = "awaiting_transfer"
	StatusCancelled        AppointmentStatus = "cancelled"
	StatusExpired          AppointmentStatus = "expired"
)

// Committed reports whether an appointment in this status occupies calendar time.
// Cancelled and expired appointments are inert: they never block a slot.
func (s AppointmentStatus) Committed() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAwaitingTransfer:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentTransfer
}

// InitialStatus is the status a new appointment is created in for this payment path.
func (m PaymentMethod) InitialStatus() AppointmentStatus {
	if m == PaymentTransfer {
		return StatusAwaitingTransfer
	}
	return StatusPending
}

// Appointment is a half-open booking interval [StartAt, EndAt) on the clinic calendar.
type Appointment struct {
	ID                    string
	ServiceID             string
	PatientID             string
	Notes                 string
	StartAt               time.Time
	EndAt                 time.Time
	Status                AppointmentStatus
	PaymentMethod         PaymentMethod
	StripeSessionID       string
	StripePaymentIntentID string
	TransferReference     string
	ApprovedBy            string
	ApprovedAt            *time.Time
	CalendarEventID       string
	CancelledAt           *time.Time
	CreatedAt             time.Time
}
