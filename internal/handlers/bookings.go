package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dvillacreses/citasalud/internal/availability"
	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/schedule"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/internal/validate"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

type BookingHandler struct {
	appts    *storage.AppointmentRepository
	services *storage.ServiceRepository
	patients *storage.PatientRepository
	events   *outbox.Repository
	sched    *schedule.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingHandler(appts *storage.AppointmentRepository, services *storage.ServiceRepository, patients *storage.PatientRepository, events *outbox.Repository, sched *schedule.Schedule, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		appts:    appts,
		services: services,
		patients: patients,
		events:   events,
		sched:    sched,
		logger:   logger,
		now:      time.Now,
	}
}

type createAppointmentRequest struct {
	ServiceID         string `json:"service_id" validate:"required,uuid4"`
	PatientID         string `json:"patient_id" validate:"required,uuid4"`
	StartAt           string `json:"start_at" validate:"required"`
	PaymentMethod     string `json:"payment_method" validate:"required,oneof=card transfer"`
	Notes             string `json:"notes" validate:"omitempty,max=500"`
	TransferReference string `json:"transfer_reference" validate:"omitempty,max=120"`
}

type createAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
}

// Appointments dispatches on method: create a booking, or fetch one by id.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Notes = strings.TrimSpace(req.Notes)
	req.TransferReference = strings.TrimSpace(req.TransferReference)
	if err := validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid start_at (want RFC3339)")
		return
	}
	startAt = startAt.In(h.sched.Location())

	now := h.now()
	if !h.sched.IsBookableDay(startAt) {
		httpx.Error(w, http.StatusUnprocessableEntity, "clinic is closed on the requested date")
		return
	}
	if !h.sched.WithinHorizon(startAt, now) {
		httpx.Error(w, http.StatusUnprocessableEntity, "requested date is beyond the booking horizon")
		return
	}
	if startAt.Before(h.sched.EarliestStart(now)) {
		httpx.Error(w, http.StatusUnprocessableEntity, "start time is below the minimum booking advance")
		return
	}

	ctx := r.Context()
	svc, err := h.services.GetActive(ctx, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("service lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load service")
		return
	}
	patient, err := h.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "patient not found")
			return
		}
		h.logger.Error("patient lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	endAt := startAt.Add(duration)
	open, close := h.sched.DayWindow(startAt)
	if startAt.Before(open) || endAt.After(close) {
		httpx.Error(w, http.StatusUnprocessableEntity, "booking must fit within business hours")
		return
	}
	if startAt.Sub(open)%h.sched.Step() != 0 {
		httpx.Error(w, http.StatusUnprocessableEntity, "start time is not on the booking grid")
		return
	}

	// Advisory pre-check. The exclusion constraint on insert is what actually
	// guarantees no double booking.
	committed, err := h.appts.ListCommitted(ctx, startAt, endAt)
	if err != nil {
		h.logger.Error("committed bookings lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load bookings")
		return
	}
	if !availability.IsIntervalFree(startAt, duration, busyIntervals(committed)) {
		httpx.Error(w, http.StatusConflict, "slot is no longer available")
		return
	}

	method := model.PaymentMethod(req.PaymentMethod)
	appt := model.Appointment{
		ServiceID:         svc.ID,
		PatientID:         patient.ID,
		Notes:             req.Notes,
		StartAt:           startAt,
		EndAt:             endAt,
		Status:            method.InitialStatus(),
		PaymentMethod:     method,
		TransferReference: req.TransferReference,
	}

	tx, err := h.appts.Begin(ctx)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.appts.Create(ctx, tx, &appt)
	if err != nil {
		if storage.IsConflict(err) {
			httpx.Error(w, http.StatusConflict, "slot was just booked")
			return
		}
		h.logger.Error("appointment create failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"service_id":     svc.ID,
		"patient_id":     patient.ID,
		"patient_email":  patient.Email,
		"payment_method": string(method),
		"status":         string(appt.Status),
		"start_at":       startAt.Format(time.RFC3339),
		"end_at":         endAt.Format(time.RFC3339),
	})
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentCreated,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("outbox insert failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			httpx.Error(w, http.StatusConflict, "slot was just booked")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to commit")
		return
	}

	loc := h.sched.Location()
	httpx.JSON(w, http.StatusCreated, createAppointmentResponse{
		AppointmentID: id,
		Status:        string(appt.Status),
		StartAt:       startAt.In(loc).Format(time.RFC3339),
		EndAt:         endAt.In(loc).Format(time.RFC3339),
	})
}

type appointmentDetailResponse struct {
	AppointmentID     string  `json:"appointment_id"`
	Status            string  `json:"status"`
	PaymentMethod     string  `json:"payment_method"`
	StartAt           string  `json:"start_at"`
	EndAt             string  `json:"end_at"`
	Notes             string  `json:"notes,omitempty"`
	TransferReference string  `json:"transfer_reference,omitempty"`
	Service           struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		DurationMinutes int     `json:"duration_minutes"`
		PriceUSD        float64 `json:"price_usd"`
	} `json:"service"`
	Patient struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	} `json:"patient"`
}

func (h *BookingHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httpx.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	d, err := h.appts.GetDetail(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("appointment lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	loc := h.sched.Location()
	var resp appointmentDetailResponse
	resp.AppointmentID = d.Appointment.ID
	resp.Status = string(d.Appointment.Status)
	resp.PaymentMethod = string(d.Appointment.PaymentMethod)
	resp.StartAt = d.Appointment.StartAt.In(loc).Format(time.RFC3339)
	resp.EndAt = d.Appointment.EndAt.In(loc).Format(time.RFC3339)
	resp.Notes = d.Appointment.Notes
	resp.TransferReference = d.Appointment.TransferReference
	resp.Service.ID = d.Service.ID
	resp.Service.Name = d.Service.Name
	resp.Service.DurationMinutes = d.Service.DurationMinutes
	resp.Service.PriceUSD = d.Service.PriceUSD
	resp.Patient.ID = d.Patient.ID
	resp.Patient.FirstName = d.Patient.FirstName
	resp.Patient.LastName = d.Patient.LastName
	resp.Patient.Email = d.Patient.Email
	httpx.JSON(w, http.StatusOK, resp)
}
