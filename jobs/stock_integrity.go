package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// balanceDrift reports a warehouse balance that disagrees with its movement
// trail.
type balanceDrift struct {
	WarehouseID string
	ProductID   string
	Booked      decimal.Decimal
	FromTrail   decimal.Decimal
}

// RunStockIntegrityCheck recomputes each (warehouse, product) balance from the
// movement trail and fails when any booked balance has drifted. Movements are
// append-only, so the trail is the source of truth.
func RunStockIntegrityCheck(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	rows, err := pool.Query(ctx, `
		SELECT m.warehouse_id, m.product_id,
		       COALESCE(w.quantity, 0)::text,
		       COALESCE(SUM(CASE WHEN m.direction = 'IN' THEN m.base_quantity ELSE -m.base_quantity END), 0)::text
		FROM inventory_movements m
		LEFT JOIN warehouse_products w
		  ON w.warehouse_id = m.warehouse_id AND w.product_id = m.product_id
		GROUP BY m.warehouse_id, m.product_id, w.quantity`)
	if err != nil {
		return fmt.Errorf("stock integrity query: %w", err)
	}
	defer rows.Close()

	var drifted []balanceDrift
	checked := 0
	for rows.Next() {
		var warehouseID, productID, bookedText, trailText string
		if err := rows.Scan(&warehouseID, &productID, &bookedText, &trailText); err != nil {
			return fmt.Errorf("stock integrity scan: %w", err)
		}
		booked, err := decimal.NewFromString(bookedText)
		if err != nil {
			return fmt.Errorf("stock integrity booked parse: %w", err)
		}
		trail, err := decimal.NewFromString(trailText)
		if err != nil {
			return fmt.Errorf("stock integrity trail parse: %w", err)
		}
		checked++
		if !booked.Equal(trail) {
			drifted = append(drifted, balanceDrift{WarehouseID: warehouseID, ProductID: productID, Booked: booked, FromTrail: trail})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("stock integrity rows: %w", err)
	}

	if len(drifted) > 0 {
		for _, d := range drifted {
			if logger != nil {
				logger.Error("stock balance drifted from movement trail",
					slog.String("warehouse_id", d.WarehouseID),
					slog.String("product_id", d.ProductID),
					slog.String("booked", d.Booked.String()),
					slog.String("from_trail", d.FromTrail.String()))
			}
		}
		return fmt.Errorf("stock integrity: %d balance(s) drifted", len(drifted))
	}
	if logger != nil {
		logger.Info("stock balances consistent", slog.Int("pairs", checked))
	}
	return nil
}

// NewStockIntegrityHandler returns the handler for TaskStockIntegrity tasks.
func NewStockIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return RunStockIntegrityCheck(ctx, pool, logger)
	}
}
