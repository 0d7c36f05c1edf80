package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	From        time.Time
	To          time.Time
	Limit       int
}

// Repository provides reads for products, balances and the movement trail.
// Stock mutations flow exclusively through the posting orchestrator so no
// movement can bypass the ledger.
type Repository interface {
	InsertProduct(ctx context.Context, product *Product) error
	InsertUnit(ctx context.Context, unit *ProductUnit) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	GetBalance(ctx context.Context, warehouseID, productID uuid.UUID) (*WarehouseProduct, error)
	TotalStock(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, code, name_ar, name_en, weighted_average_cost::text, is_active,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

func (r *repository) InsertProduct(ctx context.Context, p *Product) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO products (id, code, name_ar, name_en, weighted_average_cost, is_active,
created_by, created_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Code, p.NameAr, p.NameEn, p.WeightedAverageCost.String(), p.IsActive,
		p.Meta.CreatedBy, p.Meta.CreatedAt, p.Meta.UpdatedBy, p.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range p.Units {
		u := &p.Units[i]
		_, err = tx.Exec(ctx, `INSERT INTO product_units (id, product_id, name, conversion_factor, is_base)
VALUES ($1,$2,$3,$4,$5)`, u.ID, u.ProductID, u.Name, u.ConversionFactor.String(), u.IsBase)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *repository) InsertUnit(ctx context.Context, u *ProductUnit) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO product_units (id, product_id, name, conversion_factor, is_base)
VALUES ($1,$2,$3,$4,$5)`, u.ID, u.ProductID, u.Name, u.ConversionFactor.String(), u.IsBase)
	return err
}

func (r *repository) getProduct(ctx context.Context, query string, arg any) (*Product, error) {
	var p Product
	var wac string
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.Code, &p.NameAr, &p.NameEn, &wac, &p.IsActive,
			&p.Meta.CreatedBy, &p.Meta.CreatedAt, &p.Meta.UpdatedBy, &p.Meta.UpdatedAt, &p.Meta.DeletedBy, &p.Meta.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if p.WeightedAverageCost, err = decimal.NewFromString(wac); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, name, conversion_factor::text, is_base
FROM product_units WHERE product_id=$1 ORDER BY is_base DESC, name ASC`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u ProductUnit
		var factor string
		if err := rows.Scan(&u.ID, &u.ProductID, &u.Name, &factor, &u.IsBase); err != nil {
			return nil, err
		}
		if u.ConversionFactor, err = decimal.NewFromString(factor); err != nil {
			return nil, err
		}
		p.Units = append(p.Units, u)
	}
	return &p, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND deleted_at IS NULL`, id)
}

func (r *repository) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE code=$1 AND deleted_at IS NULL`, code)
}

func (r *repository) GetBalance(ctx context.Context, warehouseID, productID uuid.UUID) (*WarehouseProduct, error) {
	var w WarehouseProduct
	var qty string
	err := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, product_id, quantity::text,
created_by, created_at, updated_by, updated_at
FROM warehouse_products WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).
		Scan(&w.ID, &w.WarehouseID, &w.ProductID, &qty,
			&w.Meta.CreatedBy, &w.Meta.CreatedAt, &w.Meta.UpdatedBy, &w.Meta.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientStock
		}
		return nil, err
	}
	if w.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	return &w, nil
}

// TotalStock sums a product's balance across all warehouses, in base units.
// This is the pre-receipt quantity the WAC recompute needs.
func (r *repository) TotalStock(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var total string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::text FROM warehouse_products WHERE product_id=$1`, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

func (r *repository) ListMovements(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, product_id, direction, unit_id,
quantity::text, base_quantity::text, unit_cost::text, total_cost::text, balance_after::text, prior_avg_cost::text,
source_module, source_id, occurred_at, created_by, created_at
FROM inventory_movements
WHERE warehouse_id=$1 AND product_id=$2
  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
ORDER BY occurred_at ASC, created_at ASC LIMIT $5`,
		filter.WarehouseID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InventoryMovement
	for rows.Next() {
		var m InventoryMovement
		var qty, baseQty, unitCost, totalCost, balanceAfter, priorAvg string
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Direction, &m.UnitID,
			&qty, &baseQty, &unitCost, &totalCost, &balanceAfter, &priorAvg,
			&m.SourceModule, &m.SourceID, &m.OccurredAt, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if m.BaseQuantity, err = decimal.NewFromString(baseQty); err != nil {
			return nil, err
		}
		if m.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
			return nil, err
		}
		if m.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
			return nil, err
		}
		if m.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, err
		}
		if m.PriorAvgCost, err = decimal.NewFromString(priorAvg); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
