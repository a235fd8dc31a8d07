package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/dvillacreses/citasalud/internal/model"
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

func testAppointment() *model.Appointment {
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	return &model.Appointment{
		ServiceID:     "0b54df3e-9a44-4f7a-8a4e-0c8f53a1d101",
		PatientID:     "1c65ea4f-ab55-407b-9b5f-1d9064b2e202",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
		Status:        model.StatusPending,
		PaymentMethod: model.PaymentCard,
	}
}

func TestCreate_SetsID(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	appt := testAppointment()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), appt.ServiceID, appt.PatientID, "", appt.StartAt, appt.EndAt,
			"pending", "card", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	id, err := repo.Create(ctx, tx, appt)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" || appt.ID != id {
		t.Fatalf("expected generated id on the appointment, got %q / %q", id, appt.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_MapsExclusionViolationToConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := repo.Create(ctx, tx, testAppointment()); !IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	_ = tx.Rollback(ctx)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	confirmed, err := repo.ConfirmPayment(ctx, tx, "appt-1", "pi_123", "")
	if err != nil || !confirmed {
		t.Fatalf("first confirm should succeed, got confirmed=%v err=%v", confirmed, err)
	}
	confirmed, err = repo.ConfirmPayment(ctx, tx, "appt-1", "pi_123", "")
	if err != nil {
		t.Fatalf("replayed confirm errored: %v", err)
	}
	if confirmed {
		t.Fatal("replayed confirm must affect zero rows")
	}
	_ = tx.Commit(ctx)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCommitted(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "service_id", "patient_id", "start_at", "end_at", "status", "payment_method"}).
		AddRow("a1", "s1", "p1", start, start.Add(30*time.Minute), "pending", "card").
		AddRow("a2", "s1", "p2", start.Add(time.Hour), start.Add(90*time.Minute), "confirmed", "transfer")
	mock.ExpectQuery("SELECT id, service_id, patient_id").
		WithArgs(start, start.Add(9*time.Hour)).
		WillReturnRows(rows)

	appts, err := repo.ListCommitted(ctx, start, start.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("ListCommitted failed: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if appts[0].Status != model.StatusPending || appts[1].Status != model.StatusConfirmed {
		t.Fatalf("statuses not mapped: %v %v", appts[0].Status, appts[1].Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpirePending(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "service_id", "patient_id", "start_at", "end_at"}).
		AddRow("a1", "s1", "p1", start, start.Add(30*time.Minute))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").WithArgs(start, 100).WillReturnRows(rows)
	mock.ExpectCommit()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	expired, err := repo.ExpirePending(ctx, tx, start, 100)
	if err != nil {
		t.Fatalf("ExpirePending failed: %v", err)
	}
	if len(expired) != 1 || expired[0].Status != model.StatusExpired {
		t.Fatalf("expected one expired appointment, got %+v", expired)
	}
	_ = tx.Commit(ctx)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProviderEventInsert_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewProviderEventRepository(mock)
	appts := NewAppointmentRepository(mock)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_events").
		WithArgs("stripe", "evt_1", "checkout.session.completed", []byte(`{}`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	tx, err := appts.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err = repo.Insert(ctx, tx, ProviderEvent{Provider: "stripe", ProviderEventID: "evt_1", EventType: "checkout.session.completed", Payload: []byte(`{}`)})
	if err != ErrDuplicateProviderEvent {
		t.Fatalf("expected ErrDuplicateProviderEvent, got %v", err)
	}
	_ = tx.Rollback(ctx)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
