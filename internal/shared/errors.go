package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a write conflict the caller may safely retry.
	ErrConflict = errors.New("write conflict")
	// ErrIdempotencyConflict indicates a duplicate processing key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
