package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/accounting/fiscal"
	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// sourceModule tags ledger entries produced by document posting.
const sourceModule = "posting"

// Idempotency guards against blind client resubmits of the same document.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DocumentPosted is emitted once per successfully posted document, after the
// transaction committed.
type DocumentPosted struct {
	DocumentID      uuid.UUID
	Number          string
	Type            DocumentType
	JournalEntryIDs []uuid.UUID
	PostedBy        string
	PostedAt        time.Time
}

// EventName implements journals.Event.
func (DocumentPosted) EventName() string { return "posting.document_posted" }

// Service is the posting orchestrator. Posting a document resolves the open
// period, the system accounts and stock in one serializable transaction:
// either the document, its ledger entries, the stock balances and the
// movement trail all commit, or nothing does.
type Service struct {
	repo Repository
	idem Idempotency
	now  func() time.Time
}

// NewService builds Service. idem may be nil when resubmit protection is
// handled upstream.
func NewService(repo Repository, idem Idempotency) *Service {
	return &Service{repo: repo, idem: idem, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft persists a new draft document.
func (s *Service) CreateDraft(ctx context.Context, in NewDocumentInput) (*Document, error) {
	if in.At.IsZero() {
		in.At = s.now()
	}
	doc, err := NewDocument(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertDraft(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns a document with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns document headers, optionally filtered by type.
func (s *Service) List(ctx context.Context, docType DocumentType) ([]Document, error) {
	return s.repo.List(ctx, docType)
}

// Post runs the posting saga for one draft document. Any violation along the
// way aborts the whole transaction; there is no partial posting. The returned
// events are the operation's outbox, drained by the caller after commit.
func (s *Service) Post(ctx context.Context, documentID uuid.UUID, actor string) (*Document, []journals.Event, error) {
	key := "posting:" + documentID.String()
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, sourceModule); err != nil {
			return nil, nil, err
		}
	}
	var doc *Document
	var events []journals.Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, evts, err := s.post(ctx, tx, documentID, actor)
		if err != nil {
			return err
		}
		doc = posted
		events = evts
		return nil
	})
	if err != nil {
		if s.idem != nil {
			_ = s.idem.Delete(ctx, key)
		}
		return nil, nil, err
	}
	return doc, events, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, documentID uuid.UUID, actor string) (*Document, []journals.Event, error) {
	doc, err := tx.GetDocumentForUpdate(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.Status != DocStatusDraft {
		return nil, nil, ErrDocumentNotDraft
	}
	if err := doc.ValidateDraft(); err != nil {
		return nil, nil, err
	}
	ref, err := tx.ResolvePostingPeriod(ctx, doc.Date)
	if err != nil {
		return nil, nil, err
	}
	if ref.Locked {
		return nil, nil, fiscal.ErrPeriodLocked
	}
	accounts, err := resolveAccounts(ctx, tx, doc.Type)
	if err != nil {
		return nil, nil, err
	}
	number, err := tx.NextCode(ctx, string(doc.Type), ref.YearID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	sg := &saga{tx: tx, doc: doc, accounts: accounts, number: number, actor: actor, now: now}

	var entries []*journals.JournalEntry
	switch doc.Type {
	case DocTypeSalesInvoice:
		entries, err = sg.salesInvoice(ctx)
	case DocTypePurchaseInvoice:
		entries, err = sg.purchaseInvoice(ctx)
	case DocTypeSalesReturn:
		entries, err = sg.salesReturn(ctx)
	case DocTypePurchaseReturn:
		entries, err = sg.purchaseReturn(ctx)
	case DocTypeStockAdjustment:
		entries, err = sg.stockAdjustment(ctx)
	case DocTypeCashReceipt:
		entries, err = sg.cashVoucher(ctx, true)
	case DocTypeCashPayment:
		entries, err = sg.cashVoucher(ctx, false)
	default:
		return nil, nil, ErrUnknownType
	}
	if err != nil {
		return nil, nil, err
	}

	var events []journals.Event
	entryIDs := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		code, err := tx.NextCode(ctx, journals.DocumentTypeJournal, ref.YearID)
		if err != nil {
			return nil, nil, err
		}
		if err := entry.Post(code, ref.PeriodID, actor, now); err != nil {
			return nil, nil, err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return nil, nil, err
		}
		accountIDs := make([]uuid.UUID, 0, len(entry.Lines))
		for i := range entry.Lines {
			id := entry.Lines[i].AccountID
			if err := tx.MarkAccountHasPostings(ctx, id, actor, now); err != nil {
				return nil, nil, err
			}
			accountIDs = append(accountIDs, id)
		}
		entryIDs = append(entryIDs, entry.ID)
		events = append(events, journals.JournalEntryPosted{
			EntryID:    entry.ID,
			Code:       entry.Code,
			PeriodID:   ref.PeriodID,
			AccountIDs: accountIDs,
			PostedBy:   actor,
			PostedAt:   now,
		})
	}

	mainID := &entries[0].ID
	var cogsID *uuid.UUID
	if len(entries) > 1 {
		cogsID = &entries[1].ID
	}
	if err := doc.MarkPosted(number, mainID, cogsID, actor, now); err != nil {
		return nil, nil, err
	}
	if err := tx.UpdateDocumentPosted(ctx, doc); err != nil {
		return nil, nil, err
	}
	if err := tx.RecordAudit(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "posting.post",
		Entity:   "document",
		EntityID: doc.ID.String(),
		Before:   map[string]any{"status": string(DocStatusDraft)},
		After:    map[string]any{"status": string(doc.Status), "number": doc.Number, "type": string(doc.Type)},
		At:       now,
	}); err != nil {
		return nil, nil, err
	}
	events = append(events, DocumentPosted{
		DocumentID:      doc.ID,
		Number:          doc.Number,
		Type:            doc.Type,
		JournalEntryIDs: entryIDs,
		PostedBy:        actor,
		PostedAt:        now,
	})
	return doc, events, nil
}

// requiredAccounts maps each document type to the system accounts its ledger
// entries target.
func requiredAccounts(t DocumentType) []string {
	switch t {
	case DocTypeSalesInvoice:
		return []string{AccountCodeReceivables, AccountCodeSales, AccountCodeVATOutput, AccountCodeCOGS, AccountCodeInventory}
	case DocTypePurchaseInvoice:
		return []string{AccountCodeInventory, AccountCodeVATInput, AccountCodePayables}
	case DocTypeSalesReturn:
		return []string{AccountCodeSalesReturns, AccountCodeVATOutput, AccountCodeReceivables, AccountCodeInventory, AccountCodeCOGS}
	case DocTypePurchaseReturn:
		return []string{AccountCodePayables, AccountCodeInventory, AccountCodeVATInput}
	case DocTypeStockAdjustment:
		return []string{AccountCodeInventory, AccountCodeStockAdjust}
	case DocTypeCashReceipt, DocTypeCashPayment:
		return []string{AccountCodeCash}
	}
	return nil
}

func resolveAccounts(ctx context.Context, tx TxRepository, t DocumentType) (map[string]journals.PostingAccount, error) {
	accounts := make(map[string]journals.PostingAccount)
	for _, code := range requiredAccounts(t) {
		account, err := tx.GetAccountByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", code, ErrMissingAccount)
		}
		if !account.CanReceive {
			return nil, fmt.Errorf("account %s: %w", code, ErrAccountUnpostable)
		}
		accounts[code] = account
	}
	return accounts, nil
}

// saga carries the per-posting state shared by the type-specific builders.
type saga struct {
	tx       TxRepository
	doc      *Document
	accounts map[string]journals.PostingAccount
	number   string
	actor    string
	now      time.Time
}

func (sg *saga) newEntry(description string) *journals.JournalEntry {
	entry := journals.NewDraft(sg.doc.Date, description, sg.actor, sg.now)
	entry.SourceModule = sourceModule
	entry.SourceID = &sg.doc.ID
	return entry
}

func (sg *saga) debit(code string, amount decimal.Decimal) journals.LineInput {
	return journals.LineInput{AccountID: sg.accounts[code].ID, Debit: amount}
}

func (sg *saga) credit(code string, amount decimal.Decimal) journals.LineInput {
	return journals.LineInput{AccountID: sg.accounts[code].ID, Credit: amount}
}

func addLines(entry *journals.JournalEntry, lines ...journals.LineInput) error {
	for _, line := range lines {
		if err := entry.AddLine(line); err != nil {
			return err
		}
	}
	return nil
}

// issueLine removes one invoice line's stock from the warehouse at the given
// cost and appends the OUT movement. Returns the base quantity issued.
func (sg *saga) issueLine(ctx context.Context, line *DocumentLine, product *inventory.Product, unitCost, priorAvg decimal.Decimal) (decimal.Decimal, error) {
	baseQty, err := product.ToBaseQuantity(*line.UnitID, line.Quantity)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := sg.tx.GetBalanceForUpdate(ctx, *sg.doc.WarehouseID, product.ID, sg.actor, sg.now)
	if err != nil {
		return decimal.Zero, err
	}
	if err := balance.Decrease(baseQty, sg.actor, sg.now); err != nil {
		return decimal.Zero, fmt.Errorf("product %s: %w", product.Code, err)
	}
	if err := sg.tx.SaveBalance(ctx, balance); err != nil {
		return decimal.Zero, err
	}
	movement, err := inventory.NewMovement(inventory.MovementInput{
		WarehouseID:  *sg.doc.WarehouseID,
		ProductID:    product.ID,
		Direction:    inventory.MovementOut,
		UnitID:       *line.UnitID,
		Quantity:     line.Quantity,
		BaseQuantity: baseQty,
		UnitCost:     unitCost,
		BalanceAfter: balance.Quantity,
		PriorAvgCost: priorAvg,
		SourceModule: string(sg.doc.Type),
		SourceID:     sg.doc.ID,
		OccurredAt:   sg.now,
		Actor:        sg.actor,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return baseQty, sg.tx.InsertMovement(ctx, movement)
}

// receiveLine adds one invoice line's stock to the warehouse at the given
// cost and appends the IN movement. Returns the base quantity received.
func (sg *saga) receiveLine(ctx context.Context, line *DocumentLine, product *inventory.Product, unitCost, priorAvg decimal.Decimal) (decimal.Decimal, error) {
	baseQty, err := product.ToBaseQuantity(*line.UnitID, line.Quantity)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := sg.tx.GetBalanceForUpdate(ctx, *sg.doc.WarehouseID, product.ID, sg.actor, sg.now)
	if err != nil {
		return decimal.Zero, err
	}
	if err := balance.Increase(baseQty, sg.actor, sg.now); err != nil {
		return decimal.Zero, err
	}
	if err := sg.tx.SaveBalance(ctx, balance); err != nil {
		return decimal.Zero, err
	}
	movement, err := inventory.NewMovement(inventory.MovementInput{
		WarehouseID:  *sg.doc.WarehouseID,
		ProductID:    product.ID,
		Direction:    inventory.MovementIn,
		UnitID:       *line.UnitID,
		Quantity:     line.Quantity,
		BaseQuantity: baseQty,
		UnitCost:     unitCost,
		BalanceAfter: balance.Quantity,
		PriorAvgCost: priorAvg,
		SourceModule: string(sg.doc.Type),
		SourceID:     sg.doc.ID,
		OccurredAt:   sg.now,
		Actor:        sg.actor,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return baseQty, sg.tx.InsertMovement(ctx, movement)
}

// salesInvoice issues stock at the current weighted-average cost and builds
// two ledger entries: the revenue entry and the cost-of-goods-sold entry.
func (sg *saga) salesInvoice(ctx context.Context) ([]*journals.JournalEntry, error) {
	cogs := decimal.Zero
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		product, err := sg.tx.GetProductForUpdate(ctx, *line.ProductID)
		if err != nil {
			return nil, err
		}
		wac := product.WeightedAverageCost
		baseQty, err := sg.issueLine(ctx, line, product, wac, wac)
		if err != nil {
			return nil, err
		}
		cogs = cogs.Add(acctshared.Round4(baseQty.Mul(wac)))
	}
	net, vat, gross := sg.doc.NetTotal(), sg.doc.VATAmount(), sg.doc.GrossTotal()
	entry := sg.newEntry(fmt.Sprintf("Sales invoice %s - %s", sg.number, sg.doc.PartyName))
	lines := []journals.LineInput{sg.debit(AccountCodeReceivables, gross), sg.credit(AccountCodeSales, net)}
	if vat.IsPositive() {
		lines = append(lines, sg.credit(AccountCodeVATOutput, vat))
	}
	if err := addLines(entry, lines...); err != nil {
		return nil, err
	}
	entries := []*journals.JournalEntry{entry}
	if cogs.IsPositive() {
		cogsEntry := sg.newEntry(fmt.Sprintf("Cost of goods sold for %s", sg.number))
		if err := addLines(cogsEntry, sg.debit(AccountCodeCOGS, cogs), sg.credit(AccountCodeInventory, cogs)); err != nil {
			return nil, err
		}
		entries = append(entries, cogsEntry)
	}
	return entries, nil
}

// purchaseInvoice receives stock, recomputes each product's weighted-average
// cost from the pre-receipt total stock, and debits inventory at cost.
func (sg *saga) purchaseInvoice(ctx context.Context) ([]*journals.JournalEntry, error) {
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		product, err := sg.tx.GetProductForUpdate(ctx, *line.ProductID)
		if err != nil {
			return nil, err
		}
		baseQty, err := product.ToBaseQuantity(*line.UnitID, line.Quantity)
		if err != nil {
			return nil, err
		}
		lineValue := acctshared.Round4(line.Quantity.Mul(line.UnitPrice))
		baseCost := acctshared.Round4(lineValue.Div(baseQty))
		prior := product.WeightedAverageCost
		existing, err := sg.tx.TotalStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if err := product.ApplyReceipt(existing, baseQty, baseCost, sg.actor, sg.now); err != nil {
			return nil, err
		}
		if err := sg.tx.UpdateProductCost(ctx, product); err != nil {
			return nil, err
		}
		if _, err := sg.receiveLine(ctx, line, product, baseCost, prior); err != nil {
			return nil, err
		}
	}
	net, vat, gross := sg.doc.NetTotal(), sg.doc.VATAmount(), sg.doc.GrossTotal()
	entry := sg.newEntry(fmt.Sprintf("Purchase invoice %s - %s", sg.number, sg.doc.PartyName))
	lines := []journals.LineInput{sg.debit(AccountCodeInventory, net)}
	if vat.IsPositive() {
		lines = append(lines, sg.debit(AccountCodeVATInput, vat))
	}
	lines = append(lines, sg.credit(AccountCodePayables, gross))
	if err := addLines(entry, lines...); err != nil {
		return nil, err
	}
	return []*journals.JournalEntry{entry}, nil
}

// salesReturn takes stock back at the current weighted-average cost, which
// leaves the average unchanged, and reverses revenue and cost.
func (sg *saga) salesReturn(ctx context.Context) ([]*journals.JournalEntry, error) {
	cost := decimal.Zero
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		product, err := sg.tx.GetProductForUpdate(ctx, *line.ProductID)
		if err != nil {
			return nil, err
		}
		wac := product.WeightedAverageCost
		baseQty, err := sg.receiveLine(ctx, line, product, wac, wac)
		if err != nil {
			return nil, err
		}
		cost = cost.Add(acctshared.Round4(baseQty.Mul(wac)))
	}
	net, vat, gross := sg.doc.NetTotal(), sg.doc.VATAmount(), sg.doc.GrossTotal()
	entry := sg.newEntry(fmt.Sprintf("Sales return %s - %s", sg.number, sg.doc.PartyName))
	lines := []journals.LineInput{sg.debit(AccountCodeSalesReturns, net)}
	if vat.IsPositive() {
		lines = append(lines, sg.debit(AccountCodeVATOutput, vat))
	}
	lines = append(lines, sg.credit(AccountCodeReceivables, gross))
	if err := addLines(entry, lines...); err != nil {
		return nil, err
	}
	entries := []*journals.JournalEntry{entry}
	if cost.IsPositive() {
		costEntry := sg.newEntry(fmt.Sprintf("Cost reversal for %s", sg.number))
		if err := addLines(costEntry, sg.debit(AccountCodeInventory, cost), sg.credit(AccountCodeCOGS, cost)); err != nil {
			return nil, err
		}
		entries = append(entries, costEntry)
	}
	return entries, nil
}

// purchaseReturn sends stock back valued at the original receipt cost and
// restores each product's weighted-average cost to the value recorded before
// that receipt. The average-cost formula is not invertible, so the prior
// value comes from the receipt movement row.
func (sg *saga) purchaseReturn(ctx context.Context) ([]*journals.JournalEntry, error) {
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		product, err := sg.tx.GetProductForUpdate(ctx, *line.ProductID)
		if err != nil {
			return nil, err
		}
		receipt, err := sg.tx.FindReceiptMovement(ctx, string(DocTypePurchaseInvoice), *sg.doc.RelatedDocumentID, product.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("product %s: %w", product.Code, ErrReceiptNotFound)
			}
			return nil, err
		}
		if _, err := sg.issueLine(ctx, line, product, receipt.UnitCost, receipt.PriorAvgCost); err != nil {
			return nil, err
		}
		if err := product.RestoreWeightedAverageCost(receipt.PriorAvgCost, sg.actor, sg.now); err != nil {
			return nil, err
		}
		if err := sg.tx.UpdateProductCost(ctx, product); err != nil {
			return nil, err
		}
	}
	net, vat, gross := sg.doc.NetTotal(), sg.doc.VATAmount(), sg.doc.GrossTotal()
	entry := sg.newEntry(fmt.Sprintf("Purchase return %s - %s", sg.number, sg.doc.PartyName))
	lines := []journals.LineInput{sg.debit(AccountCodePayables, gross), sg.credit(AccountCodeInventory, net)}
	if vat.IsPositive() {
		lines = append(lines, sg.credit(AccountCodeVATInput, vat))
	}
	if err := addLines(entry, lines...); err != nil {
		return nil, err
	}
	return []*journals.JournalEntry{entry}, nil
}

// stockAdjustment reconciles counted stock against the book balance. IN lines
// receive at the stated cost and recompute the weighted average like a
// purchase; OUT lines issue at the current average. Both sides settle against
// the adjustment account in one entry.
func (sg *saga) stockAdjustment(ctx context.Context) ([]*journals.JournalEntry, error) {
	gain, loss := decimal.Zero, decimal.Zero
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		product, err := sg.tx.GetProductForUpdate(ctx, *line.ProductID)
		if err != nil {
			return nil, err
		}
		if line.Direction == inventory.MovementIn {
			baseQty, err := product.ToBaseQuantity(*line.UnitID, line.Quantity)
			if err != nil {
				return nil, err
			}
			lineValue := acctshared.Round4(line.Quantity.Mul(line.UnitPrice))
			baseCost := acctshared.Round4(lineValue.Div(baseQty))
			prior := product.WeightedAverageCost
			existing, err := sg.tx.TotalStock(ctx, product.ID)
			if err != nil {
				return nil, err
			}
			if err := product.ApplyReceipt(existing, baseQty, baseCost, sg.actor, sg.now); err != nil {
				return nil, err
			}
			if err := sg.tx.UpdateProductCost(ctx, product); err != nil {
				return nil, err
			}
			if _, err := sg.receiveLine(ctx, line, product, baseCost, prior); err != nil {
				return nil, err
			}
			gain = gain.Add(lineValue)
			continue
		}
		wac := product.WeightedAverageCost
		baseQty, err := sg.issueLine(ctx, line, product, wac, wac)
		if err != nil {
			return nil, err
		}
		loss = loss.Add(acctshared.Round4(baseQty.Mul(wac)))
	}
	entry := sg.newEntry(fmt.Sprintf("Stock adjustment %s", sg.number))
	var lines []journals.LineInput
	if gain.IsPositive() {
		lines = append(lines, sg.debit(AccountCodeInventory, gain), sg.credit(AccountCodeStockAdjust, gain))
	}
	if loss.IsPositive() {
		lines = append(lines, sg.debit(AccountCodeStockAdjust, loss), sg.credit(AccountCodeInventory, loss))
	}
	if len(lines) == 0 {
		return nil, ErrZeroAdjustment
	}
	if err := addLines(entry, lines...); err != nil {
		return nil, err
	}
	return []*journals.JournalEntry{entry}, nil
}

// cashVoucher posts a receipt (debit cash) or payment (credit cash) against
// the accounts named on the voucher lines.
func (sg *saga) cashVoucher(ctx context.Context, receipt bool) ([]*journals.JournalEntry, error) {
	total := sg.doc.NetTotal()
	kind := "Cash payment"
	if receipt {
		kind = "Cash receipt"
	}
	entry := sg.newEntry(fmt.Sprintf("%s %s - %s", kind, sg.number, sg.doc.PartyName))
	if receipt {
		if err := entry.AddLine(sg.debit(AccountCodeCash, total)); err != nil {
			return nil, err
		}
	}
	for i := range sg.doc.Lines {
		line := &sg.doc.Lines[i]
		account, err := sg.tx.GetAccountByID(ctx, *line.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.CanReceive {
			return nil, fmt.Errorf("account %s: %w", account.Code, journals.ErrCannotReceivePostings)
		}
		in := journals.LineInput{AccountID: account.ID, Memo: line.Description}
		if receipt {
			in.Credit = line.Amount
		} else {
			in.Debit = line.Amount
		}
		if err := entry.AddLine(in); err != nil {
			return nil, err
		}
	}
	if !receipt {
		if err := entry.AddLine(sg.credit(AccountCodeCash, total)); err != nil {
			return nil, err
		}
	}
	return []*journals.JournalEntry{entry}, nil
}
