package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/accounting/fiscal"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Service coordinates journal entry lifecycle operations. Every posting runs
// the same gate sequence: draft check, open-period check, postable-account
// check, sequence number, then a single transactional write.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft opens a draft entry with its initial lines.
func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (*JournalEntry, error) {
	entry := NewDraft(in.Date, in.Description, in.Actor, s.now())
	entry.SourceModule = in.SourceModule
	entry.SourceID = in.SourceID
	for _, line := range in.Lines {
		if err := entry.AddLine(line); err != nil {
			return nil, err
		}
	}
	if err := s.repo.InsertDraft(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateAdjustmentDraft opens a draft tied to the posted entry it corrects.
func (s *Service) CreateAdjustmentDraft(ctx context.Context, in AdjustmentDraftInput) (*JournalEntry, error) {
	original, err := s.repo.Get(ctx, in.AdjustedEntryID)
	if err != nil {
		return nil, err
	}
	entry, err := NewAdjustmentDraft(original, in.Date, in.Description, in.Actor, s.now())
	if err != nil {
		return nil, err
	}
	for _, line := range in.Lines {
		if err := entry.AddLine(line); err != nil {
			return nil, err
		}
	}
	if err := s.repo.InsertDraft(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateHeader changes a draft's date and description.
func (s *Service) UpdateHeader(ctx context.Context, id uuid.UUID, date time.Time, description, actor string) (*JournalEntry, error) {
	return s.mutateDraft(ctx, id, func(entry *JournalEntry) error {
		return entry.UpdateHeader(date, description, actor, s.now())
	})
}

// AddLine appends a line to a draft.
func (s *Service) AddLine(ctx context.Context, id uuid.UUID, in LineInput) (*JournalEntry, error) {
	return s.mutateDraft(ctx, id, func(entry *JournalEntry) error {
		return entry.AddLine(in)
	})
}

// UpdateLine replaces the draft line at lineNo.
func (s *Service) UpdateLine(ctx context.Context, id uuid.UUID, lineNo int, in LineInput) (*JournalEntry, error) {
	return s.mutateDraft(ctx, id, func(entry *JournalEntry) error {
		return entry.UpdateLine(lineNo, in)
	})
}

// RemoveLine deletes the draft line at lineNo and renumbers the rest.
func (s *Service) RemoveLine(ctx context.Context, id uuid.UUID, lineNo int) (*JournalEntry, error) {
	return s.mutateDraft(ctx, id, func(entry *JournalEntry) error {
		return entry.RemoveLine(lineNo)
	})
}

func (s *Service) mutateDraft(ctx context.Context, id uuid.UUID, fn func(*JournalEntry) error) (*JournalEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(entry); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDraft(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entry headers, newest first.
func (s *Service) List(ctx context.Context) ([]JournalEntry, error) {
	return s.repo.List(ctx)
}

// Post converts a draft into a numbered, immutable ledger record. The
// returned events are the outbox for this operation; the caller drains them
// after the call returns, knowing the transaction has committed.
func (s *Service) Post(ctx context.Context, in PostInput) (*JournalEntry, []Event, error) {
	var entry *JournalEntry
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		posted, evts, err := s.postDraft(ctx, tx, current, in.Actor, DocumentTypeJournal)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, posted); err != nil {
			return err
		}
		entry = posted
		events = evts
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: posted.ID.String(),
			Before:   map[string]any{"status": string(EntryStatusDraft)},
			After:    map[string]any{"status": string(posted.Status), "code": posted.Code},
			At:       s.now(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, events, nil
}

// postDraft runs the shared posting gates on a draft already loaded in the
// transaction and returns it posted, without persisting the header.
func (s *Service) postDraft(ctx context.Context, tx TxRepository, entry *JournalEntry, actor, documentType string) (*JournalEntry, []Event, error) {
	if entry.Status != EntryStatusDraft {
		return nil, nil, ErrNotDraft
	}
	ref, err := tx.ResolvePostingPeriod(ctx, entry.Date)
	if err != nil {
		return nil, nil, err
	}
	if ref.Locked {
		return nil, nil, fiscal.ErrPeriodLocked
	}
	accountIDs := make([]uuid.UUID, 0, len(entry.Lines))
	for i := range entry.Lines {
		account, err := tx.GetPostingAccount(ctx, entry.Lines[i].AccountID)
		if err != nil {
			return nil, nil, err
		}
		if !account.CanReceive {
			return nil, nil, fmt.Errorf("account %s: %w", account.Code, ErrCannotReceivePostings)
		}
		accountIDs = append(accountIDs, account.ID)
	}
	code, err := tx.NextCode(ctx, documentType, ref.YearID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := entry.Post(code, ref.PeriodID, actor, now); err != nil {
		return nil, nil, err
	}
	for _, id := range accountIDs {
		if err := tx.MarkAccountHasPostings(ctx, id, actor, now); err != nil {
			return nil, nil, err
		}
	}
	event := JournalEntryPosted{
		EntryID:    entry.ID,
		Code:       entry.Code,
		PeriodID:   ref.PeriodID,
		AccountIDs: accountIDs,
		PostedBy:   actor,
		PostedAt:   now,
	}
	return entry, []Event{event}, nil
}

// Reverse generates and posts the reversal entry, then marks the original
// reversed inside the same transaction, so the original is never observed
// as reversed without its committed reversal.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (*JournalEntry, []Event, error) {
	var reversal *JournalEntry
	var events []Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		date := in.Date
		if date.IsZero() {
			date = original.Date
		}
		draft, err := original.CreateReversal(in.Reason, in.Actor, date, s.now())
		if err != nil {
			return err
		}
		posted, evts, err := s.postDraft(ctx, tx, draft, in.Actor, DocumentTypeJournal)
		if err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, posted); err != nil {
			return err
		}
		if err := original.MarkAsReversed(posted.ID, in.Actor, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, original); err != nil {
			return err
		}
		reversal = posted
		events = evts
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: original.ID.String(),
			Before:   map[string]any{"status": string(EntryStatusPosted)},
			After:    map[string]any{"status": string(original.Status), "reversal_code": posted.Code, "reason": in.Reason},
			At:       s.now(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return reversal, events, nil
}
