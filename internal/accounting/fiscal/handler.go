package fiscal

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes the fiscal calendar over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches fiscal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/years", h.createYear)
	r.Get("/years", h.listYears)
	r.Get("/years/active", h.activeYear)
	r.Post("/years/{id}/activate", h.activateYear)
	r.Post("/years/{id}/close", h.closeYear)
	r.Post("/periods/{id}/lock", h.lockPeriod)
	r.Post("/periods/{id}/unlock", h.unlockPeriod)
}

type createYearRequest struct {
	Year int `json:"year" validate:"required,min=1900,max=2999"`
}

func (h *Handler) createYear(w http.ResponseWriter, r *http.Request) {
	var req createYearRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	year, err := h.service.CreateYear(r.Context(), req.Year, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, year)
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, years)
}

func (h *Handler) activeYear(w http.ResponseWriter, r *http.Request) {
	year, err := h.service.FindActiveYear(r.Context())
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, year)
}

func (h *Handler) activateYear(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	year, err := h.service.ActivateYear(r.Context(), id, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, year)
}

func (h *Handler) closeYear(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	year, err := h.service.CloseYear(r.Context(), id, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, year)
}

func (h *Handler) lockPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	period, err := h.service.LockPeriod(r.Context(), id, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, period)
}

type unlockPeriodRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) unlockPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req unlockPeriodRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	period, err := h.service.UnlockPeriod(r.Context(), id, shared.Actor(r), req.Reason)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, period)
}
