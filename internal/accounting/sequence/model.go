package sequence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// CodeSequence is one counter row per (document type, fiscal year). The
// counter only ever moves forward; formatting and incrementing happen in one
// step so a number can never be observed without being consumed.
type CodeSequence struct {
	ID           uuid.UUID
	DocumentType string
	FiscalYearID uuid.UUID
	Prefix       string
	Padding      int
	Counter      int64
	Meta         shared.RecordMeta
}

// NewCodeSequence seeds a counter at zero.
func NewCodeSequence(documentType string, yearID uuid.UUID, prefix string, padding int, actor string, at time.Time) *CodeSequence {
	if padding <= 0 {
		padding = 5
	}
	return &CodeSequence{
		ID:           uuid.New(),
		DocumentType: documentType,
		FiscalYearID: yearID,
		Prefix:       prefix,
		Padding:      padding,
		Counter:      0,
		Meta:         shared.NewRecordMeta(actor, at),
	}
}

// NextCode increments the counter and returns the formatted document number.
func (s *CodeSequence) NextCode() string {
	s.Counter++
	return Format(s.Prefix, s.Padding, s.Counter)
}

// Format renders a document number, e.g. Format("JV-", 6, 1) == "JV-000001".
func Format(prefix string, padding int, counter int64) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, counter)
}
