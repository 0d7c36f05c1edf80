package fiscal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Repository persists fiscal years and their periods.
type Repository interface {
	InsertYear(ctx context.Context, year *FiscalYear) error
	GetYear(ctx context.Context, id uuid.UUID) (*FiscalYear, error)
	GetYearByNumber(ctx context.Context, year int) (*FiscalYear, error)
	FindActiveYear(ctx context.Context) (*FiscalYear, error)
	GetPeriod(ctx context.Context, id uuid.UUID) (*FiscalPeriod, error)
	UpdateYear(ctx context.Context, year *FiscalYear) error
	UpdatePeriod(ctx context.Context, period *FiscalPeriod) error
	ListYears(ctx context.Context) ([]FiscalYear, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const yearColumns = `id, year, start_date, end_date, status, closed_at,
created_by, created_at, updated_by, updated_at`

const periodColumns = `id, year_id, number, start_date, end_date, status, locked_by, locked_at, unlock_reason,
created_by, created_at, updated_by, updated_at`

// InsertYear writes the year and its twelve periods in one transaction, so
// periods never exist without their year.
func (r *repository) InsertYear(ctx context.Context, y *FiscalYear) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO fiscal_years (`+yearColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		y.ID, y.Year, y.StartDate, y.EndDate, y.Status, y.ClosedAt,
		y.Meta.CreatedBy, y.Meta.CreatedAt, y.Meta.UpdatedBy, y.Meta.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateYear
		}
		return err
	}
	for i := range y.Periods {
		p := &y.Periods[i]
		_, err = tx.Exec(ctx, `INSERT INTO fiscal_periods (`+periodColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			p.ID, p.YearID, p.Number, p.StartDate, p.EndDate, p.Status, p.LockedBy, p.LockedAt, p.UnlockReason,
			p.Meta.CreatedBy, p.Meta.CreatedAt, p.Meta.UpdatedBy, p.Meta.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func scanYear(row pgx.Row) (*FiscalYear, error) {
	var y FiscalYear
	err := row.Scan(&y.ID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt,
		&y.Meta.CreatedBy, &y.Meta.CreatedAt, &y.Meta.UpdatedBy, &y.Meta.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &y, nil
}

func (r *repository) loadPeriods(ctx context.Context, y *FiscalYear) error {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE year_id=$1 ORDER BY number ASC`, y.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p FiscalPeriod
		if err := rows.Scan(&p.ID, &p.YearID, &p.Number, &p.StartDate, &p.EndDate, &p.Status, &p.LockedBy, &p.LockedAt, &p.UnlockReason,
			&p.Meta.CreatedBy, &p.Meta.CreatedAt, &p.Meta.UpdatedBy, &p.Meta.UpdatedAt); err != nil {
			return err
		}
		y.Periods = append(y.Periods, p)
	}
	return rows.Err()
}

func (r *repository) GetYear(ctx context.Context, id uuid.UUID) (*FiscalYear, error) {
	y, err := scanYear(r.pool.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadPeriods(ctx, y); err != nil {
		return nil, err
	}
	return y, nil
}

func (r *repository) GetYearByNumber(ctx context.Context, year int) (*FiscalYear, error) {
	y, err := scanYear(r.pool.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE year=$1`, year))
	if err != nil {
		return nil, err
	}
	if err := r.loadPeriods(ctx, y); err != nil {
		return nil, err
	}
	return y, nil
}

func (r *repository) FindActiveYear(ctx context.Context) (*FiscalYear, error) {
	y, err := scanYear(r.pool.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE status='ACTIVE' LIMIT 1`))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrNoActiveYear
		}
		return nil, err
	}
	if err := r.loadPeriods(ctx, y); err != nil {
		return nil, err
	}
	return y, nil
}

func (r *repository) GetPeriod(ctx context.Context, id uuid.UUID) (*FiscalPeriod, error) {
	var p FiscalPeriod
	err := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id).
		Scan(&p.ID, &p.YearID, &p.Number, &p.StartDate, &p.EndDate, &p.Status, &p.LockedBy, &p.LockedAt, &p.UnlockReason,
			&p.Meta.CreatedBy, &p.Meta.CreatedAt, &p.Meta.UpdatedBy, &p.Meta.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) UpdateYear(ctx context.Context, y *FiscalYear) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE fiscal_years SET status=$2, closed_at=$3, updated_by=$4, updated_at=$5 WHERE id=$1`,
		y.ID, y.Status, y.ClosedAt, y.Meta.UpdatedBy, y.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdatePeriod(ctx context.Context, p *FiscalPeriod) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE fiscal_periods SET status=$2, locked_by=$3, locked_at=$4, unlock_reason=$5, updated_by=$6, updated_at=$7 WHERE id=$1`,
		p.ID, p.Status, p.LockedBy, p.LockedAt, p.UnlockReason, p.Meta.UpdatedBy, p.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *repository) ListYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years ORDER BY year DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalYear
	for rows.Next() {
		var y FiscalYear
		if err := rows.Scan(&y.ID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt,
			&y.Meta.CreatedBy, &y.Meta.CreatedAt, &y.Meta.UpdatedBy, &y.Meta.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}
