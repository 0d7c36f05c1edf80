package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler exposes products, balances and the movement trail over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/units", h.addUnit)
	r.Get("/balances", h.getBalance)
	r.Get("/movements", h.stockCard)
	r.Get("/availability", h.availability)
}

type createProductRequest struct {
	Code         string `json:"code" validate:"required"`
	NameAr       string `json:"name_ar" validate:"required"`
	NameEn       string `json:"name_en"`
	BaseUnitName string `json:"base_unit_name" validate:"required"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		Code:         req.Code,
		NameAr:       req.NameAr,
		NameEn:       req.NameEn,
		BaseUnitName: req.BaseUnitName,
		Actor:        shared.Actor(r),
	})
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, product)
}

type addUnitRequest struct {
	Name             string `json:"name" validate:"required"`
	ConversionFactor string `json:"conversion_factor" validate:"required"`
}

func (h *Handler) addUnit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req addUnitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	factor, err := decimal.NewFromString(req.ConversionFactor)
	if err != nil {
		shared.WriteError(h.logger, w, ErrFactorNotPositive)
		return
	}
	unit, err := h.service.AddUnit(r.Context(), id, req.Name, factor)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, unit)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), warehouseID, productID)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, balance)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	filter := MovementFilter{WarehouseID: warehouseID, ProductID: productID}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.To = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	movements, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, movements)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	unitID, err := uuid.Parse(r.URL.Query().Get("unit_id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.CheckAvailability(r.Context(), warehouseID, productID, unitID, qty); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"available": true})
}

func (h *Handler) pairParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	warehouseID, err := uuid.Parse(r.URL.Query().Get("warehouse_id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	productID, err := uuid.Parse(r.URL.Query().Get("product_id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return warehouseID, productID, true
}
