package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// EntryStatus enumerates journal lifecycle values. DRAFT is the only mutable
// state; POSTED and REVERSED are terminal branches. Corrections to a posted
// entry happen only through a reversal or an adjustment entry.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

var (
	ErrNotDraft            = acctshared.Violation(acctshared.AggregateJournalEntry, "entry is not a draft")
	ErrNotPosted           = acctshared.Violation(acctshared.AggregateJournalEntry, "entry is not posted")
	ErrAlreadyReversed     = acctshared.Violation(acctshared.AggregateJournalEntry, "entry is already reversed")
	ErrReversalReason      = acctshared.Violation(acctshared.AggregateJournalEntry, "reversal requires a reason")
	ErrDescriptionRequired = acctshared.Violation(acctshared.AggregateJournalEntry, "description is required")
	ErrTooFewLines         = acctshared.Violation(acctshared.AggregateJournalEntry, "entry requires at least two lines")
	ErrUnbalanced          = acctshared.Violation(acctshared.AggregateJournalEntry, "total debit must equal total credit")
	ErrLineAccount         = acctshared.Violation(acctshared.AggregateJournalEntry, "line requires an account")
	ErrLineNegative        = acctshared.Violation(acctshared.AggregateJournalEntry, "line amounts cannot be negative")
	ErrLineBothSides       = acctshared.Violation(acctshared.AggregateJournalEntry, "line cannot carry both debit and credit")
	ErrLineZero            = acctshared.Violation(acctshared.AggregateJournalEntry, "line must carry a debit or a credit")
	ErrLineScale           = acctshared.Violation(acctshared.AggregateJournalEntry, "line amounts allow at most 4 decimal places")
	ErrLineNotFound        = acctshared.Violation(acctshared.AggregateJournalEntry, "line not found")
	ErrEntryNotFound       = acctshared.Violation(acctshared.AggregateJournalEntry, "journal entry not found")
	ErrPostingCode         = acctshared.Violation(acctshared.AggregateJournalEntry, "posting requires a permanent code")
	ErrPostingActor        = acctshared.Violation(acctshared.AggregateJournalEntry, "posting requires an actor")
	// ErrCannotReceivePostings rejects lines targeting inactive, non-leaf or
	// posting-disabled accounts.
	ErrCannotReceivePostings = acctshared.Violation(acctshared.AggregateJournalEntry, "account cannot receive postings")
)

// JournalEntryLine targets exactly one account with a debit or a credit,
// never both, at most 4 decimal places.
type JournalEntryLine struct {
	ID          uuid.UUID       `json:"id"`
	LineNo      int             `json:"line_no"`
	AccountID   uuid.UUID       `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	CostCenter  string          `json:"cost_center,omitempty"`
	WarehouseID *uuid.UUID      `json:"warehouse_id,omitempty"`
	Memo        string          `json:"memo,omitempty"`
}

// LineInput describes one line for AddLine/UpdateLine.
type LineInput struct {
	AccountID   uuid.UUID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CostCenter  string
	WarehouseID *uuid.UUID
	Memo        string
}

func (in LineInput) validate() error {
	if in.AccountID == uuid.Nil {
		return ErrLineAccount
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return ErrLineNegative
	}
	if in.Debit.IsPositive() && in.Credit.IsPositive() {
		return ErrLineBothSides
	}
	if in.Debit.IsZero() && in.Credit.IsZero() {
		return ErrLineZero
	}
	if !acctshared.WithinScale(in.Debit) || !acctshared.WithinScale(in.Credit) {
		return ErrLineScale
	}
	return nil
}

// JournalEntry is the double-entry ledger record. Lines are owned by the
// entry, numbered from 1 and renumbered on removal.
type JournalEntry struct {
	ID              uuid.UUID          `json:"id"`
	Code            string             `json:"code"`
	Date            time.Time          `json:"date"`
	Description     string             `json:"description"`
	Status          EntryStatus        `json:"status"`
	PeriodID        *uuid.UUID         `json:"period_id,omitempty"`
	SourceModule    string             `json:"source_module,omitempty"`
	SourceID        *uuid.UUID         `json:"source_id,omitempty"`
	AdjustedEntryID *uuid.UUID         `json:"adjusted_entry_id,omitempty"`
	ReversalOfID    *uuid.UUID         `json:"reversal_of_id,omitempty"`
	ReversedByID    *uuid.UUID         `json:"reversed_by_id,omitempty"`
	PostedBy        string             `json:"posted_by,omitempty"`
	PostedAt        *time.Time         `json:"posted_at,omitempty"`
	TotalDebit      decimal.Decimal    `json:"total_debit"`
	TotalCredit     decimal.Decimal    `json:"total_credit"`
	Lines           []JournalEntryLine `json:"lines,omitempty"`
	Meta            shared.RecordMeta  `json:"meta"`
}

// NewDraft constructs a draft entry carrying a temporary code.
func NewDraft(date time.Time, description, actor string, at time.Time) *JournalEntry {
	id := uuid.New()
	return &JournalEntry{
		ID:          id,
		Code:        draftCode(id),
		Date:        date,
		Description: strings.TrimSpace(description),
		Status:      EntryStatusDraft,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		Meta:        shared.NewRecordMeta(actor, at),
	}
}

// NewAdjustmentDraft constructs a draft correcting a specific posted entry.
func NewAdjustmentDraft(adjusted *JournalEntry, date time.Time, description, actor string, at time.Time) (*JournalEntry, error) {
	if adjusted.Status != EntryStatusPosted {
		return nil, ErrNotPosted
	}
	draft := NewDraft(date, description, actor, at)
	draft.AdjustedEntryID = &adjusted.ID
	return draft, nil
}

func draftCode(id uuid.UUID) string {
	return "DRAFT-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// AddLine appends a validated line and recomputes totals.
func (e *JournalEntry) AddLine(in LineInput) error {
	if e.Status != EntryStatusDraft {
		return ErrNotDraft
	}
	if err := in.validate(); err != nil {
		return err
	}
	e.Lines = append(e.Lines, JournalEntryLine{
		ID:          uuid.New(),
		LineNo:      len(e.Lines) + 1,
		AccountID:   in.AccountID,
		Debit:       in.Debit,
		Credit:      in.Credit,
		CostCenter:  in.CostCenter,
		WarehouseID: in.WarehouseID,
		Memo:        in.Memo,
	})
	e.recomputeTotals()
	return nil
}

// UpdateLine replaces the line at lineNo.
func (e *JournalEntry) UpdateLine(lineNo int, in LineInput) error {
	if e.Status != EntryStatusDraft {
		return ErrNotDraft
	}
	if err := in.validate(); err != nil {
		return err
	}
	if lineNo < 1 || lineNo > len(e.Lines) {
		return ErrLineNotFound
	}
	line := &e.Lines[lineNo-1]
	line.AccountID = in.AccountID
	line.Debit = in.Debit
	line.Credit = in.Credit
	line.CostCenter = in.CostCenter
	line.WarehouseID = in.WarehouseID
	line.Memo = in.Memo
	e.recomputeTotals()
	return nil
}

// RemoveLine deletes the line at lineNo and renumbers the remainder.
func (e *JournalEntry) RemoveLine(lineNo int) error {
	if e.Status != EntryStatusDraft {
		return ErrNotDraft
	}
	if lineNo < 1 || lineNo > len(e.Lines) {
		return ErrLineNotFound
	}
	e.Lines = append(e.Lines[:lineNo-1], e.Lines[lineNo:]...)
	for i := range e.Lines {
		e.Lines[i].LineNo = i + 1
	}
	e.recomputeTotals()
	return nil
}

// UpdateHeader mutates the draft's date and description.
func (e *JournalEntry) UpdateHeader(date time.Time, description, actor string, at time.Time) error {
	if e.Status != EntryStatusDraft {
		return ErrNotDraft
	}
	e.Date = date
	e.Description = strings.TrimSpace(description)
	e.Meta.Touch(actor, at)
	return nil
}

func (e *JournalEntry) recomputeTotals() {
	debit := decimal.Zero
	credit := decimal.Zero
	for i := range e.Lines {
		debit = debit.Add(e.Lines[i].Debit)
		credit = credit.Add(e.Lines[i].Credit)
	}
	e.TotalDebit = debit
	e.TotalCredit = credit
}

// Validate is a non-throwing rule pass returning every violation, not just
// the first, so a caller can show a complete report before posting.
func (e *JournalEntry) Validate() acctshared.Violations {
	var violations acctshared.Violations
	if strings.TrimSpace(e.Description) == "" {
		violations = append(violations, ErrDescriptionRequired)
	}
	if len(e.Lines) < 2 {
		violations = append(violations, ErrTooFewLines)
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			violations = append(violations, fmt.Errorf("line %d: %w", line.LineNo, ErrLineNegative))
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			violations = append(violations, fmt.Errorf("line %d: %w", line.LineNo, ErrLineBothSides))
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			violations = append(violations, fmt.Errorf("line %d: %w", line.LineNo, ErrLineZero))
		}
	}
	if !e.TotalDebit.Equal(e.TotalCredit) {
		violations = append(violations, ErrUnbalanced)
	}
	return violations
}

// Post assigns the permanent sequential code and timestamp and flips the
// entry to POSTED. It re-runs Validate and fails with the aggregated report.
// Posting is irreversible.
func (e *JournalEntry) Post(code string, periodID uuid.UUID, actor string, at time.Time) error {
	if e.Status != EntryStatusDraft {
		return ErrNotDraft
	}
	if strings.TrimSpace(code) == "" {
		return ErrPostingCode
	}
	if strings.TrimSpace(actor) == "" {
		return ErrPostingActor
	}
	if violations := e.Validate(); len(violations) > 0 {
		return violations
	}
	e.Code = code
	e.PeriodID = &periodID
	e.Status = EntryStatusPosted
	e.PostedBy = actor
	e.PostedAt = &at
	e.Meta.Touch(actor, at)
	return nil
}

// CreateReversal produces a new draft with every line's debit and credit
// swapped. The caller posts that draft and only then calls MarkAsReversed on
// the original, so the original is never flagged reversed before its
// reversal is durably committed.
func (e *JournalEntry) CreateReversal(reason, actor string, date time.Time, at time.Time) (*JournalEntry, error) {
	if e.Status == EntryStatusReversed {
		return nil, ErrAlreadyReversed
	}
	if e.Status != EntryStatusPosted {
		return nil, ErrNotPosted
	}
	if e.ReversedByID != nil {
		return nil, ErrAlreadyReversed
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReversalReason
	}
	reversal := NewDraft(date, fmt.Sprintf("Reversal of %s: %s", e.Code, strings.TrimSpace(reason)), actor, at)
	reversal.ReversalOfID = &e.ID
	reversal.SourceModule = e.SourceModule
	for i := range e.Lines {
		line := &e.Lines[i]
		if err := reversal.AddLine(LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			CostCenter:  line.CostCenter,
			WarehouseID: line.WarehouseID,
			Memo:        line.Memo,
		}); err != nil {
			return nil, err
		}
	}
	return reversal, nil
}

// MarkAsReversed records the reversal reference and flips the status. Called
// only after the reversal entry itself posted successfully.
func (e *JournalEntry) MarkAsReversed(reversalID uuid.UUID, actor string, at time.Time) error {
	if e.Status != EntryStatusPosted {
		return ErrNotPosted
	}
	if reversalID == uuid.Nil {
		return ErrEntryNotFound
	}
	e.ReversedByID = &reversalID
	e.Status = EntryStatusReversed
	e.Meta.Touch(actor, at)
	return nil
}
