package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dvillacreses/citasalud/internal/availability"
	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/schedule"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

type AvailabilityHandler struct {
	services *storage.ServiceRepository
	appts    *storage.AppointmentRepository
	sched    *schedule.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvailabilityHandler(services *storage.ServiceRepository, appts *storage.AppointmentRepository, sched *schedule.Schedule, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		services: services,
		appts:    appts,
		sched:    sched,
		logger:   logger,
		now:      time.Now,
	}
}

type availabilityResponse struct {
	Date            string   `json:"date"`
	ServiceID       string   `json:"service_id"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Slots           []string `json:"slots"`
}

// Slots returns the free grid-aligned start times for one service on one date.
// Closed days and out-of-horizon dates answer with an empty list before any
// storage work happens.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	serviceID := r.URL.Query().Get("service_id")
	rawDate := r.URL.Query().Get("date")
	if serviceID == "" || rawDate == "" {
		httpx.Error(w, http.StatusBadRequest, "service_id and date are required")
		return
	}
	date, err := h.sched.ParseDate(rawDate)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
		return
	}

	resp := availabilityResponse{Date: rawDate, ServiceID: serviceID, Slots: []string{}}
	now := h.now()
	if !h.sched.IsBookableDay(date) || !h.sched.WithinHorizon(date, now) {
		httpx.JSON(w, http.StatusOK, resp)
		return
	}

	svc, err := h.services.GetActive(r.Context(), serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("service lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load service")
		return
	}
	resp.DurationMinutes = svc.DurationMinutes
	duration := time.Duration(svc.DurationMinutes) * time.Minute

	open, close := h.sched.DayWindow(date)
	candidates := availability.CandidateSlots(open, close, duration, h.sched.Step())
	if len(candidates) == 0 {
		httpx.JSON(w, http.StatusOK, resp)
		return
	}

	committed, err := h.appts.ListCommitted(r.Context(), open, close)
	if err != nil {
		h.logger.Error("committed bookings lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load bookings")
		return
	}

	free := availability.Filter(candidates, duration, busyIntervals(committed), h.sched.EarliestStart(now))
	for _, t := range free {
		resp.Slots = append(resp.Slots, t.In(h.sched.Location()).Format(time.RFC3339))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func busyIntervals(appts []model.Appointment) []availability.Interval {
	busy := make([]availability.Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, availability.Interval{Start: a.StartAt, End: a.EndAt})
	}
	return busy
}
