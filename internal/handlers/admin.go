package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dvillacreses/citasalud/internal/calendar"
	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/schedule"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

type AdminHandler struct {
	appts  *storage.AppointmentRepository
	events *outbox.Repository
	syncer calendar.Syncer
	sched  *schedule.Schedule
	logger *slog.Logger
}

func NewAdminHandler(appts *storage.AppointmentRepository, events *outbox.Repository, syncer calendar.Syncer, sched *schedule.Schedule, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{appts: appts, events: events, syncer: syncer, sched: sched, logger: logger}
}

type dayItem struct {
	AppointmentID     string `json:"appointment_id"`
	PatientName       string `json:"patient_name"`
	PatientEmail      string `json:"patient_email"`
	PatientPhone      string `json:"patient_phone"`
	ServiceName       string `json:"service_name"`
	StartAt           string `json:"start_at"`
	EndAt             string `json:"end_at"`
	Status            string `json:"status"`
	PaymentMethod     string `json:"payment_method"`
	TransferReference string `json:"transfer_reference,omitempty"`
}

// Day returns every appointment on a clinic-local calendar date, regardless
// of status. This is the front-desk day view.
func (h *AdminHandler) Day(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	date, err := h.sched.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
		return
	}

	loc := h.sched.Location()
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := h.appts.ListDay(r.Context(), dayStart, dayEnd)
	if err != nil {
		h.logger.Error("day listing failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	items := make([]dayItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dayItem{
			AppointmentID:     row.ID,
			PatientName:       row.PatientName,
			PatientEmail:      row.PatientEmail,
			PatientPhone:      row.PatientPhone,
			ServiceName:       row.ServiceName,
			StartAt:           row.StartAt.In(loc).Format(time.RFC3339),
			EndAt:             row.EndAt.In(loc).Format(time.RFC3339),
			Status:            string(row.Status),
			PaymentMethod:     string(row.PaymentMethod),
			TransferReference: row.TransferReference,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"date":         dayStart.Format("2006-01-02"),
		"appointments": items,
	})
}

type approveTransferRequest struct {
	AppointmentID string `json:"appointment_id"`
	ApprovedBy    string `json:"approved_by"`
}

// ApproveTransfer confirms a bank-transfer booking after the front desk has
// verified the deposit. Unlike the payment webhook, the calendar event is
// required here: a sync failure aborts with 500 and the admin retries.
// Idempotent: re-approving an already confirmed appointment answers 409.
func (h *AdminHandler) ApproveTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req approveTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		httpx.Error(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	approvedBy := strings.TrimSpace(req.ApprovedBy)
	if approvedBy == "" {
		approvedBy = "admin"
	}

	ctx := r.Context()
	tx, err := h.appts.Begin(ctx)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.appts.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("appointment lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	if appt.Status != model.StatusAwaitingTransfer {
		httpx.Error(w, http.StatusConflict, "appointment is not awaiting transfer approval")
		return
	}

	detail, err := h.appts.GetDetail(ctx, req.AppointmentID)
	if err != nil {
		h.logger.Error("appointment detail load failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	eventID, err := h.syncer.CreateEvent(ctx, calendar.Event{
		AppointmentID: detail.Appointment.ID,
		PatientName:   detail.Patient.FirstName + " " + detail.Patient.LastName,
		PatientEmail:  detail.Patient.Email,
		ServiceName:   detail.Service.Name,
		StartAt:       detail.Appointment.StartAt,
		EndAt:         detail.Appointment.EndAt,
	})
	if err != nil {
		h.logger.Error("calendar sync failed", "err", err, "appointment_id", req.AppointmentID)
		httpx.Error(w, http.StatusInternalServerError, "calendar sync failed")
		return
	}

	approved, err := h.appts.ApproveTransfer(ctx, tx, req.AppointmentID, approvedBy, eventID)
	if err != nil {
		h.logger.Error("approve transfer failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to approve transfer")
		return
	}
	if !approved {
		httpx.Error(w, http.StatusConflict, "appointment is not awaiting transfer approval")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": req.AppointmentID,
		"payment_method": "transfer",
		"approved_by":    approvedBy,
		"confirmed_at":   time.Now().UTC(),
	})
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   req.AppointmentID,
		EventType:     outbox.EventAppointmentConfirmed,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("outbox insert failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to commit")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"status":         "confirmed",
	})
}
