package journals

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event produced by a posting operation. Events are
// returned as an explicit outbox slice and drained by the caller after the
// transaction commits; the entity holds no hidden event queue.
type Event interface {
	EventName() string
}

// JournalEntryPosted is emitted once a draft becomes a posted entry.
// Subscribers use it to react, e.g. marking referenced accounts as used.
type JournalEntryPosted struct {
	EntryID    uuid.UUID
	Code       string
	PeriodID   uuid.UUID
	AccountIDs []uuid.UUID
	PostedBy   string
	PostedAt   time.Time
}

// EventName implements Event.
func (JournalEntryPosted) EventName() string { return "journal_entry.posted" }
