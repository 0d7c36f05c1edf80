package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/accounting/fiscal"
	"github.com/atlas-erp/atlas-erp/internal/accounting/sequence"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// DocumentTypeJournal keys the sequence counter for manual journal entries.
const DocumentTypeJournal = "JOURNAL"

// PostingAccount carries the slice of account state posting needs.
type PostingAccount struct {
	ID          uuid.UUID
	Code        string
	CanReceive  bool
	HasPostings bool
}

// PeriodRef identifies the fiscal year/period owning a posting date.
type PeriodRef struct {
	YearID   uuid.UUID
	PeriodID uuid.UUID
	Locked   bool
}

// Repository encapsulates DB operations for journals.
type Repository interface {
	InsertDraft(ctx context.Context, entry *JournalEntry) error
	UpdateDraft(ctx context.Context, entry *JournalEntry) error
	Get(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	List(ctx context.Context) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	InsertEntry(ctx context.Context, entry *JournalEntry) error
	UpdateEntry(ctx context.Context, entry *JournalEntry) error
	ResolvePostingPeriod(ctx context.Context, date time.Time) (PeriodRef, error)
	GetPostingAccount(ctx context.Context, id uuid.UUID) (PostingAccount, error)
	MarkAccountHasPostings(ctx context.Context, id uuid.UUID, actor string, at time.Time) error
	NextCode(ctx context.Context, documentType string, yearID uuid.UUID) (string, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// maxTxRetries bounds optimistic retries on serialization conflicts.
const maxTxRetries = 3

// WithTx runs fn inside a serializable transaction, retrying on write
// conflicts so two concurrent postings never observe the same sequence or
// stock state.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := func() error {
			tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			if err := fn(ctx, &txRepository{tx: tx}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !sequence.IsSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return errors.Join(shared.ErrConflict, lastErr)
}

const entryColumns = `id, code, date, description, status, period_id, source_module, source_id,
adjusted_entry_id, reversal_of_id, reversed_by_id, posted_by, posted_at,
total_debit::text, total_credit::text,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

const lineColumns = `id, line_no, account_id, debit::text, credit::text, cost_center, warehouse_id, memo`

func scanEntry(row pgx.Row) (*JournalEntry, error) {
	var e JournalEntry
	var totalDebit, totalCredit string
	err := row.Scan(&e.ID, &e.Code, &e.Date, &e.Description, &e.Status, &e.PeriodID, &e.SourceModule, &e.SourceID,
		&e.AdjustedEntryID, &e.ReversalOfID, &e.ReversedByID, &e.PostedBy, &e.PostedAt,
		&totalDebit, &totalCredit,
		&e.Meta.CreatedBy, &e.Meta.CreatedAt, &e.Meta.UpdatedBy, &e.Meta.UpdatedAt, &e.Meta.DeletedBy, &e.Meta.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if e.TotalDebit, err = decimal.NewFromString(totalDebit); err != nil {
		return nil, err
	}
	if e.TotalCredit, err = decimal.NewFromString(totalCredit); err != nil {
		return nil, err
	}
	return &e, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, e *JournalEntry) error {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_entry_lines WHERE entry_id=$1 ORDER BY line_no ASC`, e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalEntryLine
		var debit, credit string
		if err := rows.Scan(&line.ID, &line.LineNo, &line.AccountID, &debit, &credit, &line.CostCenter, &line.WarehouseID, &line.Memo); err != nil {
			return err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return err
		}
		e.Lines = append(e.Lines, line)
	}
	return rows.Err()
}

func (r *repository) InsertDraft(ctx context.Context, e *JournalEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertEntry(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *JournalEntry) error {
	_, err := tx.Exec(ctx, `INSERT INTO journal_entries (id, code, date, description, status, period_id, source_module, source_id,
adjusted_entry_id, reversal_of_id, reversed_by_id, posted_by, posted_at, total_debit, total_credit,
created_by, created_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.Code, e.Date, e.Description, e.Status, e.PeriodID, e.SourceModule, e.SourceID,
		e.AdjustedEntryID, e.ReversalOfID, e.ReversedByID, e.PostedBy, e.PostedAt,
		e.TotalDebit.String(), e.TotalCredit.String(),
		e.Meta.CreatedBy, e.Meta.CreatedAt, e.Meta.UpdatedBy, e.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		_, err := tx.Exec(ctx, `INSERT INTO journal_entry_lines (id, entry_id, line_no, account_id, debit, credit, cost_center, warehouse_id, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			line.ID, e.ID, line.LineNo, line.AccountID, line.Debit.String(), line.Credit.String(), line.CostCenter, line.WarehouseID, line.Memo)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateDraft rewrites a draft's header and replaces its lines wholesale.
// Line edits renumber lines, so a targeted update buys nothing.
func (r *repository) UpdateDraft(ctx context.Context, e *JournalEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	cmd, err := tx.Exec(ctx, `UPDATE journal_entries SET date=$2, description=$3, total_debit=$4, total_credit=$5,
updated_by=$6, updated_at=$7 WHERE id=$1 AND status='DRAFT' AND deleted_at IS NULL`,
		e.ID, e.Date, e.Description, e.TotalDebit.String(), e.TotalCredit.String(), e.Meta.UpdatedBy, e.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM journal_entry_lines WHERE entry_id=$1`, e.ID); err != nil {
		return err
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		_, err := tx.Exec(ctx, `INSERT INTO journal_entry_lines (id, entry_id, line_no, account_id, debit, credit, cost_center, warehouse_id, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			line.ID, e.ID, line.LineNo, line.AccountID, line.Debit.String(), line.Credit.String(), line.CostCenter, line.WarehouseID, line.Memo)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// InsertEntryTx writes an entry and its lines inside an existing transaction.
// The posting orchestrator uses it to keep documents, ledger entries and stock
// in a single commit.
func InsertEntryTx(ctx context.Context, tx pgx.Tx, e *JournalEntry) error {
	return insertEntry(ctx, tx, e)
}

// ResolvePeriodTx maps a date to the active year's owning period, locking the
// period row so a concurrent lock cannot race the posting.
func ResolvePeriodTx(ctx context.Context, tx pgx.Tx, date time.Time) (PeriodRef, error) {
	var yearID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM fiscal_years WHERE status='ACTIVE' LIMIT 1`).Scan(&yearID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodRef{}, fiscal.ErrNoActiveYear
		}
		return PeriodRef{}, err
	}
	var ref PeriodRef
	var status fiscal.PeriodStatus
	ref.YearID = yearID
	err = tx.QueryRow(ctx, `SELECT id, status FROM fiscal_periods
WHERE year_id=$1 AND start_date <= $2::date AND end_date >= $2::date FOR UPDATE`, yearID, date).
		Scan(&ref.PeriodID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodRef{}, fiscal.ErrNoPeriodForDate
		}
		return PeriodRef{}, err
	}
	ref.Locked = status == fiscal.PeriodStatusLocked
	return ref, nil
}

const postingAccountColumns = `id, code, is_active, is_leaf, allow_posting, has_postings, deleted_at`

func scanPostingAccount(row pgx.Row) (PostingAccount, error) {
	var a PostingAccount
	var isActive, isLeaf, allowPosting bool
	var deletedAt *time.Time
	err := row.Scan(&a.ID, &a.Code, &isActive, &isLeaf, &allowPosting, &a.HasPostings, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingAccount{}, shared.ErrNotFound
		}
		return PostingAccount{}, err
	}
	a.CanReceive = isActive && isLeaf && allowPosting && deletedAt == nil
	return a, nil
}

// PostingAccountByCodeTx resolves the posting view of an account by its code.
func PostingAccountByCodeTx(ctx context.Context, tx pgx.Tx, code string) (PostingAccount, error) {
	return scanPostingAccount(tx.QueryRow(ctx, `SELECT `+postingAccountColumns+` FROM accounts WHERE code=$1`, code))
}

// PostingAccountByIDTx resolves the posting view of an account by its id.
func PostingAccountByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (PostingAccount, error) {
	return scanPostingAccount(tx.QueryRow(ctx, `SELECT `+postingAccountColumns+` FROM accounts WHERE id=$1`, id))
}

// MarkHasPostingsTx latches the has_postings flag inside a transaction.
func MarkHasPostingsTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, actor string, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE accounts SET has_postings=TRUE, updated_by=$2, updated_at=$3
WHERE id=$1 AND NOT has_postings`, id, actor, at)
	return err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.pool, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE deleted_at IS NULL ORDER BY date DESC, code DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e *JournalEntry) error {
	return insertEntry(ctx, r.tx, e)
}

func (r *txRepository) UpdateEntry(ctx context.Context, e *JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET code=$2, status=$3, period_id=$4, posted_by=$5, posted_at=$6,
reversed_by_id=$7, total_debit=$8, total_credit=$9, updated_by=$10, updated_at=$11 WHERE id=$1`,
		e.ID, e.Code, e.Status, e.PeriodID, e.PostedBy, e.PostedAt,
		e.ReversedByID, e.TotalDebit.String(), e.TotalCredit.String(), e.Meta.UpdatedBy, e.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ResolvePostingPeriod(ctx context.Context, date time.Time) (PeriodRef, error) {
	return ResolvePeriodTx(ctx, r.tx, date)
}

func (r *txRepository) GetPostingAccount(ctx context.Context, id uuid.UUID) (PostingAccount, error) {
	return scanPostingAccount(r.tx.QueryRow(ctx, `SELECT `+postingAccountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) MarkAccountHasPostings(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	return MarkHasPostingsTx(ctx, r.tx, id, actor, at)
}

func (r *txRepository) NextCode(ctx context.Context, documentType string, yearID uuid.UUID) (string, error) {
	return sequence.NextInTx(ctx, r.tx, documentType, yearID)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordTx(ctx, r.tx, log)
}
