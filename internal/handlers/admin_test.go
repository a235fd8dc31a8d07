package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/dvillacreses/citasalud/internal/calendar"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/storage"
)

type fakeSyncer struct {
	eventID string
	err     error
	last    calendar.Event
}

func (f *fakeSyncer) CreateEvent(_ context.Context, evt calendar.Event) (string, error) {
	f.last = evt
	return f.eventID, f.err
}

func newAdminHandler(t *testing.T, mock pgxmock.PgxPoolIface, syncer calendar.Syncer) *AdminHandler {
	t.Helper()
	return NewAdminHandler(
		storage.NewAppointmentRepository(mock),
		outbox.NewRepository(),
		syncer,
		testSchedule(t),
		testLogger(),
	)
}

// detailRow mirrors the appointment/patient/service join used to build
// calendar events.
func detailRow(status string) *pgxmock.Rows {
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{
		"id", "service_id", "patient_id", "notes", "start_at", "end_at", "status", "payment_method",
		"stripe_session_id", "transfer_reference", "calendar_event_id", "approved_at", "cancelled_at", "created_at",
		"p_id", "national_id", "first_name", "last_name", "email", "phone",
		"s_id", "name", "description", "duration_minutes", "price_usd",
	}).AddRow(
		"a1", testServiceID, testPatientID, "", start, start.Add(30*time.Minute), status, "transfer",
		"", "DEP-4471", "", nil, nil, start.Add(-48*time.Hour),
		testPatientID, "1714586540", "María", "Pérez", "maria@example.com", "+593991234567",
		testServiceID, "Consulta general", "", 30, 25.0,
	)
}

func TestAdminAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := AdminAuth("secret-token", "")(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/day", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/day", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token should be 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/day", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("correct token should pass, got %d", rec.Code)
	}
}

func TestAdminAuth_BcryptHashPreferred(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	// Plaintext token is ignored once a hash is configured.
	guarded := AdminAuth("plain-token", string(hash))(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/day", nil)
	req.Header.Set("Authorization", "Bearer plain-token")
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("plaintext token must not satisfy the hash, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/day", nil)
	req.Header.Set("Authorization", "Bearer hashed-token")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("hashed token should pass, got %d", rec.Code)
	}
}

func TestAdminDay(t *testing.T) {
	mock := newMock(t)
	h := newAdminHandler(t, mock, &fakeSyncer{})

	loc := testSchedule(t).Location()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, loc)
	rows := pgxmock.NewRows([]string{"id", "patient_name", "email", "phone", "service_name", "start_at", "end_at", "status", "payment_method", "transfer_reference", "created_at"}).
		AddRow("a1", "María Pérez", "maria@example.com", "+593991234567", "Consulta general", start, start.Add(30*time.Minute), "awaiting_transfer", "transfer", "DEP-4471", start.Add(-48*time.Hour))
	mock.ExpectQuery("SELECT a.id, p.first_name").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/day?date=2026-09-07", nil)
	rec := httptest.NewRecorder()
	h.Day(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Date         string    `json:"date"`
		Appointments []dayItem `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Date != "2026-09-07" || len(resp.Appointments) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Appointments[0].TransferReference != "DEP-4471" {
		t.Fatalf("expected transfer reference, got %+v", resp.Appointments[0])
	}
}

func TestApproveTransfer_Success(t *testing.T) {
	mock := newMock(t)
	syncer := &fakeSyncer{eventID: "gcal-evt-1"}
	h := newAdminHandler(t, mock, syncer)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, service_id, patient_id").
		WithArgs("a1").
		WillReturnRows(forUpdateRow("awaiting_transfer", "transfer"))
	mock.ExpectQuery("SELECT a.id, a.service_id").
		WithArgs("a1").
		WillReturnRows(detailRow("awaiting_transfer"))
	mock.ExpectExec("UPDATE appointments").
		WithArgs("a1", "frontdesk", "gcal-evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "a1", outbox.EventAppointmentConfirmed,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	body := `{"appointment_id":"a1","approved_by":"frontdesk"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/transfers/approve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ApproveTransfer(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "confirmed") {
		t.Fatalf("expected confirmed status, got %s", rec.Body.String())
	}
	if syncer.last.ServiceName != "Consulta general" || syncer.last.PatientEmail != "maria@example.com" {
		t.Fatalf("calendar event not built from the appointment detail: %+v", syncer.last)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveTransfer_CalendarFailureAborts(t *testing.T) {
	mock := newMock(t)
	h := newAdminHandler(t, mock, &fakeSyncer{err: errors.New("calendar is down")})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, service_id, patient_id").
		WithArgs("a1").
		WillReturnRows(forUpdateRow("awaiting_transfer", "transfer"))
	mock.ExpectQuery("SELECT a.id, a.service_id").
		WithArgs("a1").
		WillReturnRows(detailRow("awaiting_transfer"))
	mock.ExpectRollback()

	body := `{"appointment_id":"a1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/transfers/approve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ApproveTransfer(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("calendar failure must abort the approval with 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "calendar sync failed") {
		t.Fatalf("expected calendar failure message, got %s", rec.Body.String())
	}
	// The appointment stays awaiting_transfer: no UPDATE may have run.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveTransfer_WrongState(t *testing.T) {
	mock := newMock(t)
	h := newAdminHandler(t, mock, &fakeSyncer{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, service_id, patient_id").
		WithArgs("a1").
		WillReturnRows(forUpdateRow("confirmed", "transfer"))
	mock.ExpectRollback()

	body := `{"appointment_id":"a1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/transfers/approve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ApproveTransfer(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("already confirmed booking should be 409, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
