package journals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/accounting/fiscal"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// memoryRepo keeps entries in memory and runs transactions without a
// database; callbacks observe the same state a committed transaction would.
type memoryRepo struct {
	entries  map[uuid.UUID]*JournalEntry
	accounts map[uuid.UUID]PostingAccount
	period   PeriodRef
	counter  int64
	audits   []shared.AuditLog
}

func newJournalRepo() *memoryRepo {
	return &memoryRepo{
		entries:  make(map[uuid.UUID]*JournalEntry),
		accounts: make(map[uuid.UUID]PostingAccount),
		period:   PeriodRef{YearID: uuid.New(), PeriodID: uuid.New()},
	}
}

func (r *memoryRepo) addAccount(canReceive bool) uuid.UUID {
	id := uuid.New()
	r.accounts[id] = PostingAccount{ID: id, Code: fmt.Sprintf("11%02d", len(r.accounts)+1), CanReceive: canReceive}
	return id
}

func (r *memoryRepo) InsertDraft(ctx context.Context, e *JournalEntry) error {
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdateDraft(ctx context.Context, e *JournalEntry) error {
	if _, ok := r.entries[e.ID]; !ok {
		return ErrEntryNotFound
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	cp.Lines = append([]JournalEntryLine(nil), e.Lines...)
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e *JournalEntry) error {
	return tx.repo.InsertDraft(ctx, e)
}

func (tx *memoryTx) UpdateEntry(ctx context.Context, e *JournalEntry) error {
	cp := *e
	cp.Lines = append([]JournalEntryLine(nil), e.Lines...)
	tx.repo.entries[e.ID] = &cp
	return nil
}

func (tx *memoryTx) ResolvePostingPeriod(ctx context.Context, date time.Time) (PeriodRef, error) {
	return tx.repo.period, nil
}

func (tx *memoryTx) GetPostingAccount(ctx context.Context, id uuid.UUID) (PostingAccount, error) {
	account, ok := tx.repo.accounts[id]
	if !ok {
		return PostingAccount{}, shared.ErrNotFound
	}
	return account, nil
}

func (tx *memoryTx) MarkAccountHasPostings(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	account, ok := tx.repo.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	account.HasPostings = true
	tx.repo.accounts[id] = account
	return nil
}

func (tx *memoryTx) NextCode(ctx context.Context, documentType string, yearID uuid.UUID) (string, error) {
	tx.repo.counter++
	return fmt.Sprintf("JV-%06d", tx.repo.counter), nil
}

func (tx *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	tx.repo.audits = append(tx.repo.audits, log)
	return nil
}

func newJournalService(repo *memoryRepo) *Service {
	svc := NewService(repo)
	svc.WithNow(func() time.Time { return testTime })
	return svc
}

func TestPostDraftHappyPath(t *testing.T) {
	repo := newJournalRepo()
	svc := newJournalService(repo)
	ctx := context.Background()
	debitAccount := repo.addAccount(true)
	creditAccount := repo.addAccount(true)

	draft, err := svc.CreateDraft(ctx, CreateDraftInput{
		Date:        testTime,
		Description: "Opening balance",
		Actor:       "tester",
		Lines: []LineInput{
			{AccountID: debitAccount, Debit: dec("250")},
			{AccountID: creditAccount, Credit: dec("250")},
		},
	})
	require.NoError(t, err)
	require.Contains(t, draft.Code, "DRAFT-")

	posted, events, err := svc.Post(ctx, PostInput{EntryID: draft.ID, Actor: "tester"})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, posted.Status)
	require.Equal(t, "JV-000001", posted.Code)
	require.Equal(t, repo.period.PeriodID, *posted.PeriodID)

	require.Len(t, events, 1)
	event, ok := events[0].(JournalEntryPosted)
	require.True(t, ok)
	require.Equal(t, posted.ID, event.EntryID)
	require.ElementsMatch(t, []uuid.UUID{debitAccount, creditAccount}, event.AccountIDs)

	require.True(t, repo.accounts[debitAccount].HasPostings)
	require.True(t, repo.accounts[creditAccount].HasPostings)
	require.Len(t, repo.audits, 1)
	require.Equal(t, "journal.post", repo.audits[0].Action)
}

func TestPostRejectsLockedPeriod(t *testing.T) {
	repo := newJournalRepo()
	repo.period.Locked = true
	svc := newJournalService(repo)
	ctx := context.Background()
	a, b := repo.addAccount(true), repo.addAccount(true)

	draft, err := svc.CreateDraft(ctx, CreateDraftInput{
		Date: testTime, Description: "late entry", Actor: "tester",
		Lines: []LineInput{{AccountID: a, Debit: dec("10")}, {AccountID: b, Credit: dec("10")}},
	})
	require.NoError(t, err)

	_, _, err = svc.Post(ctx, PostInput{EntryID: draft.ID, Actor: "tester"})
	require.ErrorIs(t, err, fiscal.ErrPeriodLocked)

	stored, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, stored.Status)
}

func TestPostRejectsUnpostableAccount(t *testing.T) {
	repo := newJournalRepo()
	svc := newJournalService(repo)
	ctx := context.Background()
	good := repo.addAccount(true)
	parent := repo.addAccount(false)

	draft, err := svc.CreateDraft(ctx, CreateDraftInput{
		Date: testTime, Description: "to a parent account", Actor: "tester",
		Lines: []LineInput{{AccountID: good, Debit: dec("10")}, {AccountID: parent, Credit: dec("10")}},
	})
	require.NoError(t, err)

	_, _, err = svc.Post(ctx, PostInput{EntryID: draft.ID, Actor: "tester"})
	require.ErrorIs(t, err, ErrCannotReceivePostings)
}

func TestReversePostsSwappedEntryAndMarksOriginal(t *testing.T) {
	repo := newJournalRepo()
	svc := newJournalService(repo)
	ctx := context.Background()
	a, b := repo.addAccount(true), repo.addAccount(true)

	draft, err := svc.CreateDraft(ctx, CreateDraftInput{
		Date: testTime, Description: "wrong account", Actor: "tester",
		Lines: []LineInput{{AccountID: a, Debit: dec("75")}, {AccountID: b, Credit: dec("75")}},
	})
	require.NoError(t, err)
	_, _, err = svc.Post(ctx, PostInput{EntryID: draft.ID, Actor: "tester"})
	require.NoError(t, err)

	reversal, events, err := svc.Reverse(ctx, ReverseInput{EntryID: draft.ID, Reason: "posted to wrong account", Actor: "admin"})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, reversal.Status)
	require.Equal(t, "JV-000002", reversal.Code)
	require.Equal(t, draft.ID, *reversal.ReversalOfID)
	require.True(t, reversal.Lines[0].Credit.Equal(dec("75")))
	require.True(t, reversal.Lines[1].Debit.Equal(dec("75")))
	require.Len(t, events, 1)

	original, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusReversed, original.Status)
	require.Equal(t, reversal.ID, *original.ReversedByID)

	_, _, err = svc.Reverse(ctx, ReverseInput{EntryID: draft.ID, Reason: "twice", Actor: "admin"})
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestDraftLineEditing(t *testing.T) {
	repo := newJournalRepo()
	svc := newJournalService(repo)
	ctx := context.Background()
	a, b := repo.addAccount(true), repo.addAccount(true)

	draft, err := svc.CreateDraft(ctx, CreateDraftInput{
		Date: testTime, Description: "editing", Actor: "tester",
		Lines: []LineInput{{AccountID: a, Debit: dec("100")}, {AccountID: b, Credit: dec("90")}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateLine(ctx, draft.ID, 2, LineInput{AccountID: b, Credit: dec("100")})
	require.NoError(t, err)
	require.True(t, updated.TotalCredit.Equal(dec("100")))

	updated, err = svc.AddLine(ctx, draft.ID, LineInput{AccountID: a, Debit: dec("50")})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 3)

	updated, err = svc.RemoveLine(ctx, draft.ID, 3)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	require.True(t, updated.TotalDebit.Equal(dec("100")))

	_, err = svc.RemoveLine(ctx, draft.ID, 9)
	require.ErrorIs(t, err, ErrLineNotFound)
}
