package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByCode(ctx context.Context, code string) (*Account, error)
	List(ctx context.Context, includeDeleted bool) ([]Account, error)
	ListPostable(ctx context.Context) ([]Account, error)
	Insert(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, code, name_ar, name_en, type, parent_id, level, is_leaf, allow_posting,
is_active, is_system, currency_code, has_postings,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.NameAr, &a.NameEn, &a.Type, &a.ParentID, &a.Level, &a.IsLeaf, &a.AllowPosting,
		&a.IsActive, &a.IsSystem, &a.CurrencyCode, &a.HasPostings,
		&a.Meta.CreatedBy, &a.Meta.CreatedAt, &a.Meta.UpdatedBy, &a.Meta.UpdatedAt, &a.Meta.DeletedBy, &a.Meta.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	return scanAccount(row)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1 AND deleted_at IS NULL`, code)
	return scanAccount(row)
}

func (r *repository) List(ctx context.Context, includeDeleted bool) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY code ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListPostable(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE deleted_at IS NULL AND is_active AND is_leaf AND allow_posting ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, a *Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.Code, a.NameAr, a.NameEn, a.Type, a.ParentID, a.Level, a.IsLeaf, a.AllowPosting,
		a.IsActive, a.IsSystem, a.CurrencyCode, a.HasPostings,
		a.Meta.CreatedBy, a.Meta.CreatedAt, a.Meta.UpdatedBy, a.Meta.UpdatedAt, a.Meta.DeletedBy, a.Meta.DeletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (r *repository) Update(ctx context.Context, a *Account) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET name_ar=$2, name_en=$3, type=$4, is_leaf=$5, allow_posting=$6,
is_active=$7, has_postings=$8, updated_by=$9, updated_at=$10, deleted_by=$11, deleted_at=$12 WHERE id=$1`,
		a.ID, a.NameAr, a.NameEn, a.Type, a.IsLeaf, a.AllowPosting,
		a.IsActive, a.HasPostings, a.Meta.UpdatedBy, a.Meta.UpdatedAt, a.Meta.DeletedBy, a.Meta.DeletedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
