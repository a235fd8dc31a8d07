package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dvillacreses/citasalud/internal/identity"
	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/internal/validate"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

type PatientHandler struct {
	patients *storage.PatientRepository
	logger   *slog.Logger
}

func NewPatientHandler(patients *storage.PatientRepository, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, logger: logger}
}

type createPatientRequest struct {
	NationalID string `json:"national_id" validate:"required,cedula"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	BirthDate  string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Gender     string `json:"gender" validate:"omitempty,oneof=male female other"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
}

type patientItem struct {
	ID         string `json:"id"`
	NationalID string `json:"national_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// Patients dispatches on method: lookup by national id, or register.
func (h *PatientHandler) Patients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.lookup(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type lookupResponse struct {
	Exists  bool         `json:"exists"`
	Patient *patientItem `json:"patient,omitempty"`
}

// lookup answers 200 for every valid cédula; exists tells the booking form
// whether to prefill or register.
func (h *PatientHandler) lookup(w http.ResponseWriter, r *http.Request) {
	nationalID := identity.Normalize(r.URL.Query().Get("national_id"))
	if !identity.ValidCedula(nationalID) {
		httpx.Error(w, http.StatusBadRequest, "invalid national id")
		return
	}

	p, err := h.patients.GetByNationalID(r.Context(), nationalID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.JSON(w, http.StatusOK, lookupResponse{Exists: false})
			return
		}
		h.logger.Error("patient lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to look up patient")
		return
	}
	item := toPatientItem(p)
	httpx.JSON(w, http.StatusOK, lookupResponse{Exists: true, Patient: &item})
}

func (h *PatientHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.NationalID = identity.Normalize(req.NationalID)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid birth_date")
		return
	}

	p := model.Patient{
		NationalID: req.NationalID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		BirthDate:  birthDate,
		Gender:     req.Gender,
		Email:      req.Email,
		Phone:      req.Phone,
	}
	if _, err := h.patients.Create(r.Context(), &p); err != nil {
		// Registering an already known cédula is not an error: the booking
		// form simply continues with the existing record.
		if storage.UniqueConstraint(err) == "patients_national_id_key" {
			existing, lookupErr := h.patients.GetByNationalID(r.Context(), p.NationalID)
			if lookupErr == nil {
				httpx.JSON(w, http.StatusOK, toPatientItem(existing))
				return
			}
			h.logger.Error("existing patient reload failed", "err", lookupErr)
			httpx.Error(w, http.StatusInternalServerError, "failed to register patient")
			return
		}
		if storage.IsUniqueViolation(err) {
			httpx.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("patient create failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to register patient")
		return
	}
	httpx.JSON(w, http.StatusCreated, toPatientItem(p))
}

func toPatientItem(p model.Patient) patientItem {
	return patientItem{
		ID:         p.ID,
		NationalID: p.NationalID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		Phone:      p.Phone,
	}
}
