package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes the chart of accounts over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	treeGroup singleflight.Group
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/tree", h.tree)
	r.Get("/{code}", h.get)
	r.Post("/{code}/type", h.changeType)
	r.Post("/{code}/deactivate", h.deactivate)
	r.Post("/{code}/activate", h.activate)
	r.Delete("/{code}", h.remove)
}

type createAccountRequest struct {
	Code         string `json:"code" validate:"required,len=4,numeric"`
	NameAr       string `json:"name_ar" validate:"required"`
	NameEn       string `json:"name_en"`
	Type         string `json:"type" validate:"required"`
	ParentCode   string `json:"parent_code"`
	CurrencyCode string `json:"currency_code" validate:"required,len=3"`
	IsSystem     bool   `json:"is_system"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		Code:         req.Code,
		NameAr:       req.NameAr,
		NameEn:       req.NameEn,
		Type:         AccountType(req.Type),
		ParentCode:   req.ParentCode,
		CurrencyCode: req.CurrencyCode,
		IsSystem:     req.IsSystem,
		Actor:        shared.Actor(r),
	})
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, account)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, accounts)
}

// tree coalesces concurrent builds of the full hierarchy; the result is
// request-independent so simultaneous callers can share one database pass.
func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	nodes, err, _ := h.treeGroup.Do("tree", func() (interface{}, error) {
		return h.service.Tree(r.Context())
	})
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nodes)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, account)
}

type changeTypeRequest struct {
	Type string `json:"type" validate:"required"`
}

func (h *Handler) changeType(w http.ResponseWriter, r *http.Request) {
	var req changeTypeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	account, err := h.service.ChangeType(r.Context(), chi.URLParam(r, "code"), AccountType(req.Type), shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "code"), shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Activate(r.Context(), chi.URLParam(r, "code"), shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.SoftDelete(r.Context(), chi.URLParam(r, "code"), shared.Actor(r)); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
