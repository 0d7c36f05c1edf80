package journals

import (
	"time"

	"github.com/google/uuid"
)

// CreateDraftInput groups fields required to open a draft entry.
type CreateDraftInput struct {
	Date         time.Time
	Description  string
	SourceModule string
	SourceID     *uuid.UUID
	Lines        []LineInput
	Actor        string
}

// AdjustmentDraftInput opens a draft correcting a posted entry.
type AdjustmentDraftInput struct {
	AdjustedEntryID uuid.UUID
	Date            time.Time
	Description     string
	Lines           []LineInput
	Actor           string
}

// PostInput wraps parameters for posting a draft.
type PostInput struct {
	EntryID uuid.UUID
	Actor   string
}

// ReverseInput wraps parameters for reversing a posted entry.
type ReverseInput struct {
	EntryID uuid.UUID
	Reason  string
	Actor   string
	// Date of the reversal entry; zero means the original entry date.
	Date time.Time
}
