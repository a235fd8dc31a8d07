// Package handlers holds the HTTP endpoints of the booking API.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/httpx"
)

type ServiceHandler struct {
	services *storage.ServiceRepository
	logger   *slog.Logger
}

func NewServiceHandler(services *storage.ServiceRepository, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{services: services, logger: logger}
}

type serviceItem struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	PriceUSD        float64 `json:"price_usd"`
}

func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	services, err := h.services.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list services failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list services")
		return
	}

	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ID:              s.ID,
			Name:            s.Name,
			Description:     s.Description,
			DurationMinutes: s.DurationMinutes,
			PriceUSD:        s.PriceUSD,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"services": items})
}
