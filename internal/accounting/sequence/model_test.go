package sequence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "JV-000001", Format("JV-", 6, 1))
	require.Equal(t, "INV-00042", Format("INV-", 5, 42))
	require.Equal(t, "1000000", Format("", 5, 1000000))
}

func TestNextCode(t *testing.T) {
	seq := NewCodeSequence("JOURNAL", uuid.New(), "JV-", 6, "tester", time.Now())
	require.EqualValues(t, 0, seq.Counter)

	require.Equal(t, "JV-000001", seq.NextCode())
	require.Equal(t, "JV-000002", seq.NextCode())
	require.EqualValues(t, 2, seq.Counter)
}

func TestNewCodeSequenceDefaultPadding(t *testing.T) {
	seq := NewCodeSequence("JOURNAL", uuid.New(), "JV-", 0, "tester", time.Now())
	require.Equal(t, 5, seq.Padding)
}
