package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViolationMatching(t *testing.T) {
	base := Violation(AggregateAccount, "account not found")
	require.True(t, IsViolation(base))
	require.True(t, IsNotFound(base))

	wrapped := fmt.Errorf("loading chart: %w", base)
	require.True(t, IsViolation(wrapped))
	require.True(t, IsNotFound(wrapped))

	require.False(t, IsViolation(errors.New("connection refused")))
	require.False(t, IsNotFound(Violation(AggregateAccount, "code already exists")))
}

func TestViolationsAggregate(t *testing.T) {
	first := Violation(AggregateJournalEntry, "description is required")
	second := Violation(AggregateJournalEntry, "total debit must equal total credit")
	agg := Violations{first, second}

	require.True(t, IsViolation(agg))
	require.ErrorIs(t, agg, first)
	require.ErrorIs(t, agg, second)
	require.Equal(t, "journal_entry: description is required; journal_entry: total debit must equal total credit", agg.Error())
}
