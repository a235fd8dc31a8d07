package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/dvillacreses/citasalud/internal/calendar"
	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/payments"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

const maxWebhookBody = 65536

type PaymentHandler struct {
	appts          *storage.AppointmentRepository
	services       *storage.ServiceRepository
	patients       *storage.PatientRepository
	providerEvents *storage.ProviderEventRepository
	events         *outbox.Repository
	checkout       payments.Checkout
	syncer         calendar.Syncer
	logger         *slog.Logger
	webhookSecret  string
	tolerance      time.Duration
}

type PaymentHandlerConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
}

func NewPaymentHandler(
	appts *storage.AppointmentRepository,
	services *storage.ServiceRepository,
	patients *storage.PatientRepository,
	providerEvents *storage.ProviderEventRepository,
	events *outbox.Repository,
	checkout payments.Checkout,
	syncer calendar.Syncer,
	logger *slog.Logger,
	cfg PaymentHandlerConfig,
) *PaymentHandler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	return &PaymentHandler{
		appts:          appts,
		services:       services,
		patients:       patients,
		providerEvents: providerEvents,
		events:         events,
		checkout:       checkout,
		syncer:         syncer,
		logger:         logger,
		webhookSecret:  cfg.WebhookSecret,
		tolerance:      cfg.Tolerance,
	}
}

type checkoutRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type checkoutResponse struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	CheckoutURL       string `json:"checkout_url"`
}

// Checkout creates a hosted payment session for a pending card booking.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppointmentID == "" {
		httpx.Error(w, http.StatusBadRequest, "appointment_id is required")
		return
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
	if appt.Status != model.StatusPending || appt.PaymentMethod != model.PaymentCard {
		httpx.Error(w, http.StatusConflict, "appointment is not awaiting card payment")
		return
	}

	svc, err := h.services.GetActive(ctx, appt.ServiceID)
	if err != nil {
		h.logger.Error("service lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load service")
		return
	}
	patient, err := h.patients.GetByID(ctx, appt.PatientID)
	if err != nil {
		h.logger.Error("patient lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	sess, err := h.checkout.CreateSession(ctx, payments.SessionRequest{
		AppointmentID:  appt.ID,
		ServiceName:    svc.Name,
		AmountUSDCents: int64(svc.PriceUSD * 100),
		CustomerEmail:  patient.Email,
	})
	if err != nil {
		h.logger.Error("checkout session create failed", "err", err, "appointment_id", appt.ID)
		httpx.Error(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	if err := h.appts.SetStripeSession(ctx, tx, appt.ID, sess.ID); err != nil {
		h.logger.Error("store checkout session failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to store checkout session")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	httpx.JSON(w, http.StatusCreated, checkoutResponse{CheckoutSessionID: sess.ID, CheckoutURL: sess.URL})
}

// StripeWebhook confirms a booking when its checkout session completes.
// Signature verification, replay protection via provider_events, and a
// status-guarded UPDATE make the whole path idempotent.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	event, err := webhook.ConstructEventWithTolerance(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret, h.tolerance)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "err", err)
		httpx.Error(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	ctx := r.Context()
	tx, err := h.appts.Begin(ctx)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.providerEvents.Insert(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         event.Data.Raw,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		h.logger.Error("provider event insert failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	appt, err := h.lookupWebhookAppointment(ctx, tx, &session)
	if err != nil {
		if storage.IsNotFound(err) {
			// Nothing to confirm; acknowledge so the provider stops retrying.
			h.logger.Warn("webhook references unknown appointment", "session_id", session.ID)
			_ = tx.Commit(ctx)
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "unknown_appointment"})
			return
		}
		h.logger.Error("appointment lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	paymentIntentID := ""
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}
	confirmed, err := h.appts.ConfirmPayment(ctx, tx, appt.ID, paymentIntentID, "")
	if err != nil {
		h.logger.Error("confirm payment failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to confirm appointment")
		return
	}
	if confirmed {
		if err := h.insertConfirmedEvent(ctx, tx, appt.ID, "card"); err != nil {
			h.logger.Error("outbox insert failed", "err", err)
			httpx.Error(w, http.StatusInternalServerError, "failed to write outbox event")
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to commit")
		return
	}

	if confirmed {
		syncConfirmedToCalendar(ctx, h.appts, h.syncer, h.logger, appt.ID)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandler) lookupWebhookAppointment(ctx context.Context, tx pgx.Tx, session *stripe.CheckoutSession) (model.Appointment, error) {
	if id := session.Metadata["appointment_id"]; id != "" {
		return h.appts.GetForUpdate(ctx, tx, id)
	}
	return h.appts.GetByStripeSessionForUpdate(ctx, tx, session.ID)
}

func (h *PaymentHandler) insertConfirmedEvent(ctx context.Context, tx pgx.Tx, appointmentID, method string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"payment_method": method,
		"confirmed_at":   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     outbox.EventAppointmentConfirmed,
		Payload:       payload,
	})
}
