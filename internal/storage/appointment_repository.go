package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dvillacreses/citasalud/internal/model"
)

type AppointmentRepository struct {
	db DB
}

func NewAppointmentRepository(db DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// Create inserts one appointment row. The calendar exclusion constraint rejects
// the insert when the interval overlaps a committed booking; callers must map
// that error via IsConflict.
func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, service_id, patient_id, notes, start_at, end_at, status, payment_method, transfer_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, appt.ServiceID, appt.PatientID, appt.Notes, appt.StartAt, appt.EndAt,
		string(appt.Status), string(appt.PaymentMethod), nullIfEmpty(appt.TransferReference))
	if err != nil {
		return "", err
	}
	appt.ID = id
	return id, nil
}

// ListCommitted returns the committed booking intervals whose [start_at, end_at)
// intersects [from, to). Cancelled and expired rows never block the calendar.
func (r *AppointmentRepository) ListCommitted(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, service_id, patient_id, start_at, end_at, status, payment_method
		FROM appointments
		WHERE status IN ('pending', 'confirmed', 'awaiting_transfer')
			AND start_at < $2
			AND end_at > $1
		ORDER BY start_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var status, method string
		if err := rows.Scan(&appt.ID, &appt.ServiceID, &appt.PatientID,
			&appt.StartAt, &appt.EndAt, &status, &method); err != nil {
			return nil, err
		}
		appt.Status = model.AppointmentStatus(status)
		appt.PaymentMethod = model.PaymentMethod(method)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Detail is an appointment joined with its patient and service.
type Detail struct {
	Appointment model.Appointment
	Patient     model.Patient
	Service     model.Service
}

func (r *AppointmentRepository) GetDetail(ctx context.Context, appointmentID string) (Detail, error) {
	var d Detail
	var status, method string
	err := r.db.QueryRow(ctx, `
		SELECT a.id, a.service_id, a.patient_id, COALESCE(a.notes, ''),
			a.start_at, a.end_at, a.status, a.payment_method,
			COALESCE(a.stripe_session_id, ''), COALESCE(a.transfer_reference, ''),
			COALESCE(a.calendar_event_id, ''), a.approved_at, a.cancelled_at, a.created_at,
			p.id, p.national_id, p.first_name, p.last_name, p.email, p.phone,
			s.id, s.name, COALESCE(s.description, ''), s.duration_minutes, s.price_usd
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN services s ON s.id = a.service_id
		WHERE a.id = $1
	`, appointmentID).Scan(
		&d.Appointment.ID, &d.Appointment.ServiceID, &d.Appointment.PatientID, &d.Appointment.Notes,
		&d.Appointment.StartAt, &d.Appointment.EndAt, &status, &method,
		&d.Appointment.StripeSessionID, &d.Appointment.TransferReference,
		&d.Appointment.CalendarEventID, &d.Appointment.ApprovedAt, &d.Appointment.CancelledAt, &d.Appointment.CreatedAt,
		&d.Patient.ID, &d.Patient.NationalID, &d.Patient.FirstName, &d.Patient.LastName, &d.Patient.Email, &d.Patient.Phone,
		&d.Service.ID, &d.Service.Name, &d.Service.Description, &d.Service.DurationMinutes, &d.Service.PriceUSD,
	)
	if err != nil {
		return Detail{}, err
	}
	d.Appointment.Status = model.AppointmentStatus(status)
	d.Appointment.PaymentMethod = model.PaymentMethod(method)
	return d, nil
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	return r.scanOneForUpdate(ctx, tx, `
		SELECT id, service_id, patient_id, start_at, end_at, status, payment_method,
			COALESCE(stripe_session_id, ''), COALESCE(calendar_event_id, ''), created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID)
}

func (r *AppointmentRepository) GetByStripeSessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (model.Appointment, error) {
	return r.scanOneForUpdate(ctx, tx, `
		SELECT id, service_id, patient_id, start_at, end_at, status, payment_method,
			COALESCE(stripe_session_id, ''), COALESCE(calendar_event_id, ''), created_at
		FROM appointments
		WHERE stripe_session_id = $1
		FOR UPDATE
	`, sessionID)
}

func (r *AppointmentRepository) scanOneForUpdate(ctx context.Context, tx pgx.Tx, query, arg string) (model.Appointment, error) {
	var appt model.Appointment
	var status, method string
	err := tx.QueryRow(ctx, query, arg).Scan(
		&appt.ID, &appt.ServiceID, &appt.PatientID,
		&appt.StartAt, &appt.EndAt, &status, &method,
		&appt.StripeSessionID, &appt.CalendarEventID, &appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.AppointmentStatus(status)
	appt.PaymentMethod = model.PaymentMethod(method)
	return appt, nil
}

func (r *AppointmentRepository) SetStripeSession(ctx context.Context, tx pgx.Tx, appointmentID, sessionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET stripe_session_id = $2, updated_at = now()
		WHERE id = $1
	`, appointmentID, sessionID)
	return err
}

// ConfirmPayment transitions pending -> confirmed. The status predicate makes
// the transition idempotent under webhook replays: re-applying it when the row
// is already confirmed affects zero rows.
func (r *AppointmentRepository) ConfirmPayment(ctx context.Context, tx pgx.Tx, appointmentID, paymentIntentID, calendarEventID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
			stripe_payment_intent_id = $2,
			calendar_event_id = COALESCE(NULLIF($3, ''), calendar_event_id),
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, appointmentID, nullIfEmpty(paymentIntentID), calendarEventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApproveTransfer transitions awaiting_transfer -> confirmed, recording who
// approved the bank transfer. Idempotent the same way ConfirmPayment is.
func (r *AppointmentRepository) ApproveTransfer(ctx context.Context, tx pgx.Tx, appointmentID, approvedBy, calendarEventID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
			approved_by = $2,
			approved_at = now(),
			calendar_event_id = COALESCE(NULLIF($3, ''), calendar_event_id),
			updated_at = now()
		WHERE id = $1 AND status = 'awaiting_transfer'
	`, appointmentID, approvedBy, calendarEventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCalendarEventID records the external calendar event after a booking is
// confirmed. Runs outside the confirmation transaction: calendar sync is best
// effort and must not roll back a payment.
func (r *AppointmentRepository) SetCalendarEventID(ctx context.Context, appointmentID, eventID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $2, updated_at = now()
		WHERE id = $1
	`, appointmentID, eventID)
	return err
}

// DayRow is the admin day-view projection.
type DayRow struct {
	ID                string
	PatientName       string
	PatientEmail      string
	PatientPhone      string
	ServiceName       string
	StartAt           time.Time
	EndAt             time.Time
	Status            model.AppointmentStatus
	PaymentMethod     model.PaymentMethod
	TransferReference string
	CreatedAt         time.Time
}

func (r *AppointmentRepository) ListDay(ctx context.Context, from, to time.Time) ([]DayRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, p.first_name || ' ' || p.last_name, p.email, p.phone, s.name,
			a.start_at, a.end_at, a.status, a.payment_method,
			COALESCE(a.transfer_reference, ''), a.created_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN services s ON s.id = a.service_id
		WHERE a.start_at >= $1 AND a.start_at < $2
		ORDER BY a.start_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayRow
	for rows.Next() {
		var row DayRow
		var status, method string
		if err := rows.Scan(&row.ID, &row.PatientName, &row.PatientEmail, &row.PatientPhone, &row.ServiceName,
			&row.StartAt, &row.EndAt, &status, &method, &row.TransferReference, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Status = model.AppointmentStatus(status)
		row.PaymentMethod = model.PaymentMethod(method)
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ExpirePending marks stale unpaid card bookings as expired and returns the
// affected rows so the caller can emit events. SKIP LOCKED keeps concurrent
// sweepers from stepping on each other.
func (r *AppointmentRepository) ExpirePending(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		UPDATE appointments
		SET status = 'expired', updated_at = now()
		WHERE id IN (
			SELECT id FROM appointments
			WHERE status = 'pending'
				AND payment_method = 'card'
				AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, service_id, patient_id, start_at, end_at
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []model.Appointment
	for rows.Next() {
		appt := model.Appointment{Status: model.StatusExpired, PaymentMethod: model.PaymentCard}
		if err := rows.Scan(&appt.ID, &appt.ServiceID, &appt.PatientID, &appt.StartAt, &appt.EndAt); err != nil {
			return nil, err
		}
		expired = append(expired, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return expired, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
