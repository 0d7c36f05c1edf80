package posting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

const dateLayout = "2006-01-02"

// Enqueuer hands posted-document notifications to the background queue.
type Enqueuer interface {
	EnqueueDocumentPosted(ctx context.Context, documentID uuid.UUID, number string) error
}

// Handler exposes business documents and the posting operation over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
}

// NewHandler builds Handler. enqueuer may be nil.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes attaches document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDraft)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
}

type documentLineRequest struct {
	ProductID   string `json:"product_id" validate:"omitempty,uuid"`
	UnitID      string `json:"unit_id" validate:"omitempty,uuid"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	AccountID   string `json:"account_id" validate:"omitempty,uuid"`
	Amount      string `json:"amount"`
	Direction   string `json:"direction" validate:"omitempty,oneof=IN OUT"`
	Description string `json:"description"`
}

func (req documentLineRequest) toLine() (DocumentLine, error) {
	var line DocumentLine
	line.Description = req.Description
	line.Direction = inventory.MovementDirection(req.Direction)
	if req.ProductID != "" {
		id, err := uuid.Parse(req.ProductID)
		if err != nil {
			return DocumentLine{}, ErrProductRequired
		}
		line.ProductID = &id
	}
	if req.UnitID != "" {
		id, err := uuid.Parse(req.UnitID)
		if err != nil {
			return DocumentLine{}, ErrProductRequired
		}
		line.UnitID = &id
	}
	if req.AccountID != "" {
		id, err := uuid.Parse(req.AccountID)
		if err != nil {
			return DocumentLine{}, ErrAccountRequired
		}
		line.AccountID = &id
	}
	var err error
	if req.Quantity != "" {
		if line.Quantity, err = decimal.NewFromString(req.Quantity); err != nil {
			return DocumentLine{}, ErrQuantityInvalid
		}
	}
	if req.UnitPrice != "" {
		if line.UnitPrice, err = decimal.NewFromString(req.UnitPrice); err != nil {
			return DocumentLine{}, ErrPriceInvalid
		}
	}
	if req.Amount != "" {
		if line.Amount, err = decimal.NewFromString(req.Amount); err != nil {
			return DocumentLine{}, ErrAmountInvalid
		}
	}
	return line, nil
}

type createDocumentRequest struct {
	Type              string                `json:"type" validate:"required"`
	Date              string                `json:"date" validate:"required"`
	PartyName         string                `json:"party_name" validate:"required"`
	WarehouseID       string                `json:"warehouse_id" validate:"omitempty,uuid"`
	VATRate           string                `json:"vat_rate"`
	RelatedDocumentID string                `json:"related_document_id" validate:"omitempty,uuid"`
	Notes             string                `json:"notes"`
	Lines             []documentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := NewDocumentInput{
		Type:      DocumentType(req.Type),
		Date:      date,
		PartyName: req.PartyName,
		Notes:     req.Notes,
		Actor:     shared.Actor(r),
	}
	if req.WarehouseID != "" {
		id, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in.WarehouseID = &id
	}
	if req.RelatedDocumentID != "" {
		id, err := uuid.Parse(req.RelatedDocumentID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in.RelatedDocumentID = &id
	}
	if req.VATRate != "" {
		if in.VATRate, err = decimal.NewFromString(req.VATRate); err != nil {
			shared.WriteError(h.logger, w, ErrVATRateInvalid)
			return
		}
	}
	for _, lr := range req.Lines {
		line, err := lr.toLine()
		if err != nil {
			shared.WriteError(h.logger, w, err)
			return
		}
		in.Lines = append(in.Lines, line)
	}
	doc, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	docType := DocumentType(r.URL.Query().Get("type"))
	if docType != "" && !docType.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	docs, err := h.service.List(r.Context(), docType)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	doc, events, err := h.service.Post(r.Context(), id, shared.Actor(r))
	if err != nil {
		shared.WriteError(h.logger, w, err)
		return
	}
	for _, event := range events {
		h.logger.Info("event emitted", slog.String("event", event.EventName()))
		if posted, ok := event.(DocumentPosted); ok && h.enqueuer != nil {
			if err := h.enqueuer.EnqueueDocumentPosted(r.Context(), posted.DocumentID, posted.Number); err != nil {
				h.logger.Warn("enqueue document posted", slog.Any("error", err))
			}
		}
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}
