package sequence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// ErrSequenceNotFound indicates no counter is configured for the
// (document type, fiscal year) pair.
var ErrSequenceNotFound = errors.New("sequence: no counter for document type and year")

const serializationFailure = "40001"

// maxRetries bounds optimistic retries on serialization conflicts.
const maxRetries = 3

// Repository issues document numbers.
type Repository interface {
	Next(ctx context.Context, documentType string, yearID uuid.UUID) (string, error)
	Ensure(ctx context.Context, seq *CodeSequence) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NextInTx increments the counter inside the caller's transaction and
// returns the formatted number. The row lock makes concurrent postings
// queue; under serializable isolation a conflicting reader aborts with
// SQLSTATE 40001 and must retry, never skipping a number.
func NextInTx(ctx context.Context, tx pgx.Tx, documentType string, yearID uuid.UUID) (string, error) {
	var prefix string
	var padding int
	var counter int64
	err := tx.QueryRow(ctx, `UPDATE code_sequences SET counter = counter + 1, updated_at = NOW()
WHERE document_type=$1 AND fiscal_year_id=$2 RETURNING prefix, padding, counter`, documentType, yearID).
		Scan(&prefix, &padding, &counter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSequenceNotFound
		}
		return "", err
	}
	return Format(prefix, padding, counter), nil
}

// Next issues the next number in its own serializable transaction, retrying
// a bounded number of times on write conflicts.
func (r *repository) Next(ctx context.Context, documentType string, yearID uuid.UUID) (string, error) {
	var code string
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := func() error {
			tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			code, err = NextInTx(ctx, tx, documentType, yearID)
			if err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return code, nil
		}
		if !IsSerializationFailure(err) {
			return "", err
		}
		lastErr = err
	}
	return "", errors.Join(shared.ErrConflict, lastErr)
}

// Ensure creates the counter row if absent.
func (r *repository) Ensure(ctx context.Context, seq *CodeSequence) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO code_sequences (id, document_type, fiscal_year_id, prefix, padding, counter, created_by, created_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (document_type, fiscal_year_id) DO NOTHING`,
		seq.ID, seq.DocumentType, seq.FiscalYearID, seq.Prefix, seq.Padding, seq.Counter,
		seq.Meta.CreatedBy, seq.Meta.CreatedAt, seq.Meta.UpdatedBy, seq.Meta.UpdatedAt)
	return err
}

// IsSerializationFailure reports whether err is a store write conflict the
// caller may retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
