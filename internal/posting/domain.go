package posting

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// DocumentType enumerates the postable business documents.
type DocumentType string

const (
	DocTypeSalesInvoice    DocumentType = "SALES_INVOICE"
	DocTypePurchaseInvoice DocumentType = "PURCHASE_INVOICE"
	DocTypeSalesReturn     DocumentType = "SALES_RETURN"
	DocTypePurchaseReturn  DocumentType = "PURCHASE_RETURN"
	DocTypeStockAdjustment DocumentType = "STOCK_ADJUSTMENT"
	DocTypeCashReceipt     DocumentType = "CASH_RECEIPT"
	DocTypeCashPayment     DocumentType = "CASH_PAYMENT"
)

// InventoryBearing reports whether posting the type moves stock.
func (t DocumentType) InventoryBearing() bool {
	switch t {
	case DocTypeSalesInvoice, DocTypePurchaseInvoice, DocTypeSalesReturn, DocTypePurchaseReturn, DocTypeStockAdjustment:
		return true
	}
	return false
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeSalesInvoice, DocTypePurchaseInvoice, DocTypeSalesReturn, DocTypePurchaseReturn,
		DocTypeStockAdjustment, DocTypeCashReceipt, DocTypeCashPayment:
		return true
	}
	return false
}

// DocumentStatus enumerates document lifecycle values. Posting is the only
// transition and it is irreversible; corrections go through reversals.
type DocumentStatus string

const (
	DocStatusDraft  DocumentStatus = "DRAFT"
	DocStatusPosted DocumentStatus = "POSTED"
)

// System GL accounts resolved by fixed code during posting.
const (
	AccountCodeCash         = "1111"
	AccountCodeReceivables  = "1121"
	AccountCodeInventory    = "1141"
	AccountCodeVATInput     = "1151"
	AccountCodePayables     = "2111"
	AccountCodeVATOutput    = "2131"
	AccountCodeSales        = "4101"
	AccountCodeSalesReturns = "4102"
	AccountCodeCOGS         = "5101"
	AccountCodeStockAdjust  = "5102"
)

var (
	ErrDocumentNotDraft  = acctshared.Violation(acctshared.AggregateDocument, "document is not a draft")
	ErrDocumentNotFound  = acctshared.Violation(acctshared.AggregateDocument, "document not found")
	ErrUnknownType       = acctshared.Violation(acctshared.AggregateDocument, "unknown document type")
	ErrNoLines           = acctshared.Violation(acctshared.AggregateDocument, "document requires at least one line")
	ErrWarehouseRequired = acctshared.Violation(acctshared.AggregateDocument, "inventory documents require a warehouse")
	ErrProductRequired   = acctshared.Violation(acctshared.AggregateDocument, "line requires a product and unit")
	ErrAccountRequired   = acctshared.Violation(acctshared.AggregateDocument, "voucher line requires an account")
	ErrQuantityInvalid   = acctshared.Violation(acctshared.AggregateDocument, "line quantity must be positive")
	ErrPriceInvalid      = acctshared.Violation(acctshared.AggregateDocument, "line price cannot be negative")
	ErrAmountInvalid     = acctshared.Violation(acctshared.AggregateDocument, "voucher line amount must be positive")
	ErrVATRateInvalid    = acctshared.Violation(acctshared.AggregateDocument, "vat rate must be between 0 and 1")
	ErrRelatedRequired   = acctshared.Violation(acctshared.AggregateDocument, "returns must reference the original document")
	ErrMissingAccount    = acctshared.Violation(acctshared.AggregateDocument, "required system account is missing")
	ErrReceiptNotFound   = acctshared.Violation(acctshared.AggregateDocument, "original receipt movement not found")
	ErrAccountUnpostable = acctshared.Violation(acctshared.AggregateDocument, "required system account cannot receive postings")
	ErrDirectionInvalid  = acctshared.Violation(acctshared.AggregateDocument, "adjustment line direction must be IN or OUT")
	ErrAdjustCostInvalid = acctshared.Violation(acctshared.AggregateDocument, "adjustment receipt requires a positive unit cost")
	ErrVATNotAllowed     = acctshared.Violation(acctshared.AggregateDocument, "stock adjustments carry no vat")
	ErrZeroAdjustment    = acctshared.Violation(acctshared.AggregateDocument, "adjustment has no ledger effect")
)

// DocumentLine is one item of a business document. Invoice lines carry a
// product/unit/quantity/price; voucher lines carry an account and amount;
// stock adjustment lines additionally carry a direction.
type DocumentLine struct {
	ID          uuid.UUID                   `json:"id"`
	LineNo      int                         `json:"line_no"`
	ProductID   *uuid.UUID                  `json:"product_id,omitempty"`
	UnitID      *uuid.UUID                  `json:"unit_id,omitempty"`
	Quantity    decimal.Decimal             `json:"quantity"`
	UnitPrice   decimal.Decimal             `json:"unit_price"`
	AccountID   *uuid.UUID                  `json:"account_id,omitempty"`
	Amount      decimal.Decimal             `json:"amount"`
	Direction   inventory.MovementDirection `json:"direction,omitempty"`
	Description string                      `json:"description,omitempty"`
}

// Document is a draft business document awaiting posting.
type Document struct {
	ID                uuid.UUID         `json:"id"`
	Type              DocumentType      `json:"type"`
	Status            DocumentStatus    `json:"status"`
	Number            string            `json:"number,omitempty"`
	Date              time.Time         `json:"date"`
	PartyName         string            `json:"party_name"`
	WarehouseID       *uuid.UUID        `json:"warehouse_id,omitempty"`
	VATRate           decimal.Decimal   `json:"vat_rate"`
	RelatedDocumentID *uuid.UUID        `json:"related_document_id,omitempty"`
	JournalEntryID    *uuid.UUID        `json:"journal_entry_id,omitempty"`
	COGSEntryID       *uuid.UUID        `json:"cogs_entry_id,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Lines             []DocumentLine    `json:"lines,omitempty"`
	Meta              shared.RecordMeta `json:"meta"`
}

// NewDocumentInput groups draft construction parameters.
type NewDocumentInput struct {
	Type              DocumentType
	Date              time.Time
	PartyName         string
	WarehouseID       *uuid.UUID
	VATRate           decimal.Decimal
	RelatedDocumentID *uuid.UUID
	Notes             string
	Lines             []DocumentLine
	Actor             string
	At                time.Time
}

// NewDocument constructs a validated draft.
func NewDocument(in NewDocumentInput) (*Document, error) {
	doc := &Document{
		ID:                uuid.New(),
		Type:              in.Type,
		Status:            DocStatusDraft,
		Date:              in.Date,
		PartyName:         strings.TrimSpace(in.PartyName),
		WarehouseID:       in.WarehouseID,
		VATRate:           in.VATRate,
		RelatedDocumentID: in.RelatedDocumentID,
		Notes:             in.Notes,
		Meta:              shared.NewRecordMeta(in.Actor, in.At),
	}
	for i, line := range in.Lines {
		line.ID = uuid.New()
		line.LineNo = i + 1
		doc.Lines = append(doc.Lines, line)
	}
	if err := doc.ValidateDraft(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ValidateDraft checks the structural rules for the document type. Cross-
// aggregate checks (period, accounts, stock) belong to the orchestrator.
func (d *Document) ValidateDraft() error {
	if !d.Type.Valid() {
		return ErrUnknownType
	}
	if len(d.Lines) == 0 {
		return ErrNoLines
	}
	if d.VATRate.IsNegative() || d.VATRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrVATRateInvalid
	}
	if d.Type.InventoryBearing() {
		if d.WarehouseID == nil {
			return ErrWarehouseRequired
		}
		if d.Type == DocTypePurchaseReturn && d.RelatedDocumentID == nil {
			return ErrRelatedRequired
		}
		if d.Type == DocTypeStockAdjustment && !d.VATRate.IsZero() {
			return ErrVATNotAllowed
		}
		for i := range d.Lines {
			line := &d.Lines[i]
			if line.ProductID == nil || line.UnitID == nil {
				return ErrProductRequired
			}
			if !line.Quantity.IsPositive() {
				return ErrQuantityInvalid
			}
			if line.UnitPrice.IsNegative() {
				return ErrPriceInvalid
			}
			if d.Type == DocTypeStockAdjustment {
				switch line.Direction {
				case inventory.MovementIn:
					if !line.UnitPrice.IsPositive() {
						return ErrAdjustCostInvalid
					}
				case inventory.MovementOut:
				default:
					return ErrDirectionInvalid
				}
			}
		}
		return nil
	}
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.AccountID == nil {
			return ErrAccountRequired
		}
		if !line.Amount.IsPositive() {
			return ErrAmountInvalid
		}
	}
	return nil
}

// NetTotal sums line values before VAT, rounded to 4 places.
func (d *Document) NetTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.ProductID != nil {
			total = total.Add(line.Quantity.Mul(line.UnitPrice))
		} else {
			total = total.Add(line.Amount)
		}
	}
	return acctshared.Round4(total)
}

// VATAmount derives the tax portion from the net total.
func (d *Document) VATAmount() decimal.Decimal {
	return acctshared.Round4(d.NetTotal().Mul(d.VATRate))
}

// GrossTotal is net plus VAT.
func (d *Document) GrossTotal() decimal.Decimal {
	return d.NetTotal().Add(d.VATAmount())
}

// MarkPosted flips the document out of draft with its permanent number and
// ledger references. Irreversible.
func (d *Document) MarkPosted(number string, journalEntryID, cogsEntryID *uuid.UUID, actor string, at time.Time) error {
	if d.Status != DocStatusDraft {
		return ErrDocumentNotDraft
	}
	d.Status = DocStatusPosted
	d.Number = number
	d.JournalEntryID = journalEntryID
	d.COGSEntryID = cogsEntryID
	d.Meta.Touch(actor, at)
	return nil
}
