package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. Before and After carry
// value snapshots of the entity around irreversible transitions.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Before   map[string]any
	After    map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

const auditInsert = `INSERT INTO audit_logs (actor, action, entity, entity_id, before, after, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`

// Record persists the log entry outside any business transaction.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	before, after, err := marshalSnapshots(log)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, auditInsert, log.Actor, log.Action, log.Entity, log.EntityID, before, after, log.At)
	return err
}

// RecordTx persists the log entry inside the caller's transaction so the
// audit row commits or rolls back with the business change.
func RecordTx(ctx context.Context, tx pgx.Tx, log AuditLog) error {
	before, after, err := marshalSnapshots(log)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, auditInsert, log.Actor, log.Action, log.Entity, log.EntityID, before, after, log.At)
	return err
}

func marshalSnapshots(log AuditLog) ([]byte, []byte, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return nil, nil, errors.New("audit log requires action/entity/entity_id")
	}
	before, err := json.Marshal(log.Before)
	if err != nil {
		return nil, nil, err
	}
	after, err := json.Marshal(log.After)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}
