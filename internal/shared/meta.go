package shared

import "time"

// RecordMeta carries the creation, update and soft-delete trail every
// persistent record embeds. Deletion is always soft; reads filter on
// DeletedAt explicitly.
type RecordMeta struct {
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy string     `json:"updated_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewRecordMeta stamps a fresh record.
func NewRecordMeta(actor string, at time.Time) RecordMeta {
	return RecordMeta{
		CreatedBy: actor,
		CreatedAt: at,
		UpdatedBy: actor,
		UpdatedAt: at,
	}
}

// Touch records a mutation.
func (m *RecordMeta) Touch(actor string, at time.Time) {
	m.UpdatedBy = actor
	m.UpdatedAt = at
}

// MarkDeleted soft-deletes the record.
func (m *RecordMeta) MarkDeleted(actor string, at time.Time) {
	m.DeletedBy = &actor
	m.DeletedAt = &at
	m.Touch(actor, at)
}

// IsDeleted reports whether the record is soft-deleted.
func (m *RecordMeta) IsDeleted() bool {
	return m.DeletedAt != nil
}
