package journals

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

const dateLayout = "2006-01-02"

// Handler exposes journal entry lifecycle over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDraft)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.updateHeader)
	r.Post("/{id}/lines", h.addLine)
	r.Put("/{id}/lines/{lineNo}", h.updateLine)
	r.Delete("/{id}/lines/{lineNo}", h.removeLine)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
	r.Post("/{id}/adjustments", h.createAdjustment)
}

type lineRequest struct {
	AccountID   string `json:"account_id" validate:"required,uuid"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	CostCenter  string `json:"cost_center"`
	WarehouseID string `json:"warehouse_id" validate:"omitempty,uuid"`
	Memo        string `json:"memo"`
}

func (req lineRequest) toInput() (LineInput, error) {
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return LineInput{}, ErrLineAccount
	}
	in := LineInput{AccountID: accountID, CostCenter: req.CostCenter, Memo: req.Memo}
	if req.Debit != "" {
		if in.Debit, err = decimal.NewFromString(req.Debit); err != nil {
			return LineInput{}, ErrLineNegative
		}
	}
	if req.Credit != "" {
		if in.Credit, err = decimal.NewFromString(req.Credit); err != nil {
			return LineInput{}, ErrLineNegative
		}
	}
	if req.WarehouseID != "" {
		warehouseID, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			return LineInput{}, ErrLineAccount
		}
		in.WarehouseID = &warehouseID
	}
	return in, nil
}

type createDraftRequest struct {
	Date        string        `json:"date" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := CreateDraftInput{Date: date, Description: req.Description, Actor: shared.Actor(r)}
	for _, lr := range req.Lines {
		line, err := lr.toInput()
		if err != nil {
			shared.WriteError(h.logger, w, err)
			return
		}
		in.Lines = append(in.Lines, line)
	}
	entry, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

type updateHeaderRequest struct {
	Date        string `json:"date" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req updateHeaderRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	entry, err := h.service.UpdateHeader(r.Context(), id, date, req.Description, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req lineRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	line, err := req.toInput()
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	entry, err := h.service.AddLine(r.Context(), id, line)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, lineNo, ok := h.lineTarget(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	line, err := req.toInput()
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	entry, err := h.service.UpdateLine(r.Context(), id, lineNo, line)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, lineNo, ok := h.lineTarget(w, r)
	if !ok {
		return
	}
	entry, err := h.service.RemoveLine(r.Context(), id, lineNo)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) lineTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	lineNo, err := strconv.Atoi(chi.URLParam(r, "lineNo"))
	if err != nil || lineNo < 1 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	return id, lineNo, true
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	entry, events, err := h.service.Post(r.Context(), PostInput{EntryID: id, Actor: shared.Actor(r)})
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	h.drain(events)
	shared.WriteJSON(w, http.StatusOK, entry)
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required"`
	Date   string `json:"date"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req reverseRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	in := ReverseInput{EntryID: id, Reason: req.Reason, Actor: shared.Actor(r)}
	if req.Date != "" {
		if in.Date, err = time.Parse(dateLayout, req.Date); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}
	reversal, events, err := h.service.Reverse(r.Context(), in)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	h.drain(events)
	shared.WriteJSON(w, http.StatusOK, reversal)
}

type adjustmentRequest struct {
	Date        string        `json:"date" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req adjustmentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := AdjustmentDraftInput{AdjustedEntryID: id, Date: date, Description: req.Description, Actor: shared.Actor(r)}
	for _, lr := range req.Lines {
		line, err := lr.toInput()
		if err != nil {
			shared.WriteError(h.logger, w, err)
			return
		}
		in.Lines = append(in.Lines, line)
	}
	entry, err := h.service.CreateAdjustmentDraft(r.Context(), in)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) drain(events []Event) {
	for _, event := range events {
		h.logger.Info("event emitted", slog.String("event", event.EventName()))
	}
}
