package journals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, time.April, 2, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func balancedDraft(t *testing.T) *JournalEntry {
	t.Helper()
	entry := NewDraft(testTime, "Office rent April", "tester", testTime)
	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("1500")}))
	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Credit: dec("1500")}))
	return entry
}

func TestAddLineValidation(t *testing.T) {
	entry := NewDraft(testTime, "test", "tester", testTime)

	err := entry.AddLine(LineInput{Debit: dec("10")})
	require.ErrorIs(t, err, ErrLineAccount)

	err = entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("-10")})
	require.ErrorIs(t, err, ErrLineNegative)

	err = entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("10"), Credit: dec("10")})
	require.ErrorIs(t, err, ErrLineBothSides)

	err = entry.AddLine(LineInput{AccountID: uuid.New()})
	require.ErrorIs(t, err, ErrLineZero)

	err = entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("10.00001")})
	require.ErrorIs(t, err, ErrLineScale)
}

func TestTotalsRecomputed(t *testing.T) {
	entry := balancedDraft(t)
	require.True(t, entry.TotalDebit.Equal(dec("1500")))
	require.True(t, entry.TotalCredit.Equal(dec("1500")))

	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("200")}))
	require.True(t, entry.TotalDebit.Equal(dec("1700")))

	require.NoError(t, entry.RemoveLine(3))
	require.True(t, entry.TotalDebit.Equal(dec("1500")))
}

func TestRemoveLineRenumbers(t *testing.T) {
	entry := balancedDraft(t)
	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("5")}))

	require.NoError(t, entry.RemoveLine(2))
	require.Len(t, entry.Lines, 2)
	require.Equal(t, 1, entry.Lines[0].LineNo)
	require.Equal(t, 2, entry.Lines[1].LineNo)

	require.ErrorIs(t, entry.RemoveLine(5), ErrLineNotFound)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	entry := NewDraft(testTime, "  ", "tester", testTime)
	entry.Lines = append(entry.Lines, JournalEntryLine{LineNo: 1, AccountID: uuid.New(), Debit: dec("10"), Credit: dec("10")})
	entry.recomputeTotals()

	violations := entry.Validate()
	require.Len(t, violations, 3)
	require.ErrorIs(t, violations, ErrDescriptionRequired)
	require.ErrorIs(t, violations, ErrTooFewLines)
	require.ErrorIs(t, violations, ErrLineBothSides)
}

func TestPostAssignsPermanentCode(t *testing.T) {
	entry := balancedDraft(t)
	periodID := uuid.New()

	require.ErrorIs(t, entry.Post("", periodID, "tester", testTime), ErrPostingCode)
	require.ErrorIs(t, entry.Post("JV-000001", periodID, " ", testTime), ErrPostingActor)

	require.NoError(t, entry.Post("JV-000001", periodID, "tester", testTime))
	require.Equal(t, EntryStatusPosted, entry.Status)
	require.Equal(t, "JV-000001", entry.Code)
	require.Equal(t, periodID, *entry.PeriodID)
	require.Equal(t, "tester", entry.PostedBy)
	require.NotNil(t, entry.PostedAt)

	require.ErrorIs(t, entry.Post("JV-000002", periodID, "tester", testTime), ErrNotDraft)
}

func TestPostRejectsUnbalancedDraft(t *testing.T) {
	entry := NewDraft(testTime, "unbalanced", "tester", testTime)
	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Debit: dec("100")}))
	require.NoError(t, entry.AddLine(LineInput{AccountID: uuid.New(), Credit: dec("90")}))

	err := entry.Post("JV-000001", uuid.New(), "tester", testTime)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Equal(t, EntryStatusDraft, entry.Status)
}

func TestCreateReversalSwapsSides(t *testing.T) {
	entry := balancedDraft(t)
	require.NoError(t, entry.Post("JV-000001", uuid.New(), "tester", testTime))

	_, err := entry.CreateReversal("", "tester", testTime, testTime)
	require.ErrorIs(t, err, ErrReversalReason)

	reversal, err := entry.CreateReversal("wrong month", "tester", testTime, testTime)
	require.NoError(t, err)
	require.Equal(t, entry.ID, *reversal.ReversalOfID)
	require.Len(t, reversal.Lines, 2)
	require.True(t, reversal.Lines[0].Credit.Equal(entry.Lines[0].Debit))
	require.True(t, reversal.Lines[1].Debit.Equal(entry.Lines[1].Credit))
	require.Equal(t, entry.Lines[0].AccountID, reversal.Lines[0].AccountID)

	require.NoError(t, entry.MarkAsReversed(reversal.ID, "tester", testTime))
	require.Equal(t, EntryStatusReversed, entry.Status)
	require.Equal(t, reversal.ID, *entry.ReversedByID)

	_, err = entry.CreateReversal("again", "tester", testTime, testTime)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestAdjustmentDraftRequiresPostedOriginal(t *testing.T) {
	draft := balancedDraft(t)
	_, err := NewAdjustmentDraft(draft, testTime, "fix", "tester", testTime)
	require.ErrorIs(t, err, ErrNotPosted)

	require.NoError(t, draft.Post("JV-000001", uuid.New(), "tester", testTime))
	adj, err := NewAdjustmentDraft(draft, testTime, "fix", "tester", testTime)
	require.NoError(t, err)
	require.Equal(t, draft.ID, *adj.AdjustedEntryID)
	require.Equal(t, EntryStatusDraft, adj.Status)
}
