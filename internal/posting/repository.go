package posting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	"github.com/atlas-erp/atlas-erp/internal/accounting/sequence"
	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Repository persists business documents and opens posting transactions.
type Repository interface {
	InsertDraft(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	List(ctx context.Context, docType DocumentType) ([]Document, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes every write the posting saga performs, all bound to one
// serializable transaction so the commit is all-or-nothing.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (*Document, error)
	UpdateDocumentPosted(ctx context.Context, doc *Document) error

	ResolvePostingPeriod(ctx context.Context, date time.Time) (journals.PeriodRef, error)
	GetAccountByCode(ctx context.Context, code string) (journals.PostingAccount, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (journals.PostingAccount, error)
	MarkAccountHasPostings(ctx context.Context, id uuid.UUID, actor string, at time.Time) error
	NextCode(ctx context.Context, documentType string, yearID uuid.UUID) (string, error)
	InsertEntry(ctx context.Context, entry *journals.JournalEntry) error

	GetProductForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Product, error)
	UpdateProductCost(ctx context.Context, product *inventory.Product) error
	TotalStock(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	GetBalanceForUpdate(ctx context.Context, warehouseID, productID uuid.UUID, actor string, at time.Time) (*inventory.WarehouseProduct, error)
	SaveBalance(ctx context.Context, balance *inventory.WarehouseProduct) error
	InsertMovement(ctx context.Context, movement *inventory.InventoryMovement) error
	FindReceiptMovement(ctx context.Context, sourceModule string, sourceID, productID uuid.UUID) (*inventory.InventoryMovement, error)

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const maxTxRetries = 3

// WithTx runs fn inside a serializable transaction, retrying on write
// conflicts. Two documents racing for the same sequence counter or the same
// stock row serialize here instead of corrupting either.
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

const documentColumns = `id, type, status, number, date, party_name, warehouse_id, vat_rate::text,
related_document_id, journal_entry_id, cogs_entry_id, notes,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

const documentLineColumns = `id, line_no, product_id, unit_id, quantity::text, unit_price::text,
account_id, amount::text, direction, description`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var vatRate string
	err := row.Scan(&d.ID, &d.Type, &d.Status, &d.Number, &d.Date, &d.PartyName, &d.WarehouseID, &vatRate,
		&d.RelatedDocumentID, &d.JournalEntryID, &d.COGSEntryID, &d.Notes,
		&d.Meta.CreatedBy, &d.Meta.CreatedAt, &d.Meta.UpdatedBy, &d.Meta.UpdatedAt, &d.Meta.DeletedBy, &d.Meta.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if d.VATRate, err = decimal.NewFromString(vatRate); err != nil {
		return nil, err
	}
	return &d, nil
}

func loadLines(ctx context.Context, q querier, d *Document) error {
	rows, err := q.Query(ctx, `SELECT `+documentLineColumns+` FROM document_lines WHERE document_id=$1 ORDER BY line_no ASC`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line DocumentLine
		var qty, price, amount string
		if err := rows.Scan(&line.ID, &line.LineNo, &line.ProductID, &line.UnitID, &qty, &price,
			&line.AccountID, &amount, &line.Direction, &line.Description); err != nil {
			return err
		}
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return err
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return err
		}
		if line.Amount, err = decimal.NewFromString(amount); err != nil {
			return err
		}
		d.Lines = append(d.Lines, line)
	}
	return rows.Err()
}

func (r *repository) InsertDraft(ctx context.Context, d *Document) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO documents (id, type, status, number, date, party_name, warehouse_id, vat_rate,
related_document_id, notes, created_by, created_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.Type, d.Status, d.Number, d.Date, d.PartyName, d.WarehouseID, d.VATRate.String(),
		d.RelatedDocumentID, d.Notes, d.Meta.CreatedBy, d.Meta.CreatedAt, d.Meta.UpdatedBy, d.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range d.Lines {
		line := &d.Lines[i]
		_, err = tx.Exec(ctx, `INSERT INTO document_lines (id, document_id, line_no, product_id, unit_id, quantity, unit_price, account_id, amount, direction, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			line.ID, d.ID, line.LineNo, line.ProductID, line.UnitID, line.Quantity.String(), line.UnitPrice.String(),
			line.AccountID, line.Amount.String(), string(line.Direction), line.Description)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.pool, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repository) List(ctx context.Context, docType DocumentType) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents
WHERE deleted_at IS NULL AND ($1 = '' OR type = $1) ORDER BY date DESC, created_at DESC`, string(docType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.tx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *txRepository) UpdateDocumentPosted(ctx context.Context, d *Document) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET status=$2, number=$3, journal_entry_id=$4, cogs_entry_id=$5,
updated_by=$6, updated_at=$7 WHERE id=$1`,
		d.ID, d.Status, d.Number, d.JournalEntryID, d.COGSEntryID, d.Meta.UpdatedBy, d.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) ResolvePostingPeriod(ctx context.Context, date time.Time) (journals.PeriodRef, error) {
	return journals.ResolvePeriodTx(ctx, r.tx, date)
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (journals.PostingAccount, error) {
	return journals.PostingAccountByCodeTx(ctx, r.tx, code)
}

func (r *txRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (journals.PostingAccount, error) {
	return journals.PostingAccountByIDTx(ctx, r.tx, id)
}

func (r *txRepository) MarkAccountHasPostings(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	return journals.MarkHasPostingsTx(ctx, r.tx, id, actor, at)
}

func (r *txRepository) NextCode(ctx context.Context, documentType string, yearID uuid.UUID) (string, error) {
	return sequence.NextInTx(ctx, r.tx, documentType, yearID)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry *journals.JournalEntry) error {
	return journals.InsertEntryTx(ctx, r.tx, entry)
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	var p inventory.Product
	var wac string
	err := r.tx.QueryRow(ctx, `SELECT id, code, name_ar, name_en, weighted_average_cost::text, is_active,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at
FROM products WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id).
		Scan(&p.ID, &p.Code, &p.NameAr, &p.NameEn, &wac, &p.IsActive,
			&p.Meta.CreatedBy, &p.Meta.CreatedAt, &p.Meta.UpdatedBy, &p.Meta.UpdatedAt, &p.Meta.DeletedBy, &p.Meta.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, err
	}
	if p.WeightedAverageCost, err = decimal.NewFromString(wac); err != nil {
		return nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, name, conversion_factor::text, is_base
FROM product_units WHERE product_id=$1 ORDER BY is_base DESC, name ASC`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u inventory.ProductUnit
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

func (r *txRepository) UpdateProductCost(ctx context.Context, p *inventory.Product) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET weighted_average_cost=$2, updated_by=$3, updated_at=$4 WHERE id=$1`,
		p.ID, p.WeightedAverageCost.String(), p.Meta.UpdatedBy, p.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

func (r *txRepository) TotalStock(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var total string
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::text FROM warehouse_products WHERE product_id=$1`, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

// GetBalanceForUpdate locks the (warehouse, product) balance row, opening a
// zero balance when none exists yet. Receipts into a fresh warehouse start
// from zero; issues from it then fail the sufficiency check.
func (r *txRepository) GetBalanceForUpdate(ctx context.Context, warehouseID, productID uuid.UUID, actor string, at time.Time) (*inventory.WarehouseProduct, error) {
	var w inventory.WarehouseProduct
	var qty string
	err := r.tx.QueryRow(ctx, `SELECT id, warehouse_id, product_id, quantity::text,
created_by, created_at, updated_by, updated_at
FROM warehouse_products WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&w.ID, &w.WarehouseID, &w.ProductID, &qty,
			&w.Meta.CreatedBy, &w.Meta.CreatedAt, &w.Meta.UpdatedBy, &w.Meta.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fresh := inventory.NewWarehouseProduct(warehouseID, productID, actor, at)
			_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_products (id, warehouse_id, product_id, quantity, created_by, created_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				fresh.ID, fresh.WarehouseID, fresh.ProductID, fresh.Quantity.String(),
				fresh.Meta.CreatedBy, fresh.Meta.CreatedAt, fresh.Meta.UpdatedBy, fresh.Meta.UpdatedAt)
			if err != nil {
				return nil, err
			}
			return fresh, nil
		}
		return nil, err
	}
	if w.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *txRepository) SaveBalance(ctx context.Context, w *inventory.WarehouseProduct) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE warehouse_products SET quantity=$2, updated_by=$3, updated_at=$4 WHERE id=$1`,
		w.ID, w.Quantity.String(), w.Meta.UpdatedBy, w.Meta.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return inventory.ErrInsufficientStock
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m *inventory.InventoryMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_movements (id, warehouse_id, product_id, direction, unit_id,
quantity, base_quantity, unit_cost, total_cost, balance_after, prior_avg_cost,
source_module, source_id, occurred_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		m.ID, m.WarehouseID, m.ProductID, m.Direction, m.UnitID,
		m.Quantity.String(), m.BaseQuantity.String(), m.UnitCost.String(), m.TotalCost.String(),
		m.BalanceAfter.String(), m.PriorAvgCost.String(),
		m.SourceModule, m.SourceID, m.OccurredAt, m.CreatedBy, m.CreatedAt)
	return err
}

// FindReceiptMovement returns the IN movement a source document produced for
// a product. Purchase reversals read the prior average cost from it.
func (r *txRepository) FindReceiptMovement(ctx context.Context, sourceModule string, sourceID, productID uuid.UUID) (*inventory.InventoryMovement, error) {
	var m inventory.InventoryMovement
	var qty, baseQty, unitCost, totalCost, balanceAfter, priorAvg string
	err := r.tx.QueryRow(ctx, `SELECT id, warehouse_id, product_id, direction, unit_id,
quantity::text, base_quantity::text, unit_cost::text, total_cost::text, balance_after::text, prior_avg_cost::text,
source_module, source_id, occurred_at, created_by, created_at
FROM inventory_movements
WHERE source_module=$1 AND source_id=$2 AND product_id=$3 AND direction='IN'
ORDER BY created_at ASC LIMIT 1`, sourceModule, sourceID, productID).
		Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Direction, &m.UnitID,
			&qty, &baseQty, &unitCost, &totalCost, &balanceAfter, &priorAvg,
			&m.SourceModule, &m.SourceID, &m.OccurredAt, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
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
	return &m, nil
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordTx(ctx, r.tx, log)
}
