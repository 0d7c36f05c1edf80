package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// periodImbalance reports a fiscal period whose posted entries do not balance.
type periodImbalance struct {
	PeriodID    string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// RunGLIntegrityCheck sums debits and credits of posted journal entries per
// fiscal period and fails when any period is out of balance.
func RunGLIntegrityCheck(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	rows, err := pool.Query(ctx, `
		SELECT e.period_id,
		       COALESCE(SUM(l.debit), 0)::text,
		       COALESCE(SUM(l.credit), 0)::text
		FROM journal_entries e
		JOIN journal_entry_lines l ON l.entry_id = e.id
		WHERE e.status = 'POSTED'
		GROUP BY e.period_id`)
	if err != nil {
		return fmt.Errorf("gl integrity query: %w", err)
	}
	defer rows.Close()

	var broken []periodImbalance
	checked := 0
	for rows.Next() {
		var periodID, debitText, creditText string
		if err := rows.Scan(&periodID, &debitText, &creditText); err != nil {
			return fmt.Errorf("gl integrity scan: %w", err)
		}
		debit, err := decimal.NewFromString(debitText)
		if err != nil {
			return fmt.Errorf("gl integrity debit parse: %w", err)
		}
		credit, err := decimal.NewFromString(creditText)
		if err != nil {
			return fmt.Errorf("gl integrity credit parse: %w", err)
		}
		checked++
		if !debit.Equal(credit) {
			broken = append(broken, periodImbalance{PeriodID: periodID, TotalDebit: debit, TotalCredit: credit})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("gl integrity rows: %w", err)
	}

	if len(broken) > 0 {
		for _, p := range broken {
			if logger != nil {
				logger.Error("ledger out of balance",
					slog.String("period_id", p.PeriodID),
					slog.String("debit", p.TotalDebit.String()),
					slog.String("credit", p.TotalCredit.String()))
			}
		}
		return fmt.Errorf("gl integrity: %d period(s) out of balance", len(broken))
	}
	if logger != nil {
		logger.Info("ledger balanced", slog.Int("periods", checked))
	}
	return nil
}

// NewGLIntegrityHandler returns the handler for TaskGLIntegrity tasks.
func NewGLIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return RunGLIntegrityCheck(ctx, pool, logger)
	}
}
