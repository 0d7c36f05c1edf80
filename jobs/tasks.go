package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity verifies that posted journal entries balance per period.
	TaskGLIntegrity = "gl:integrity"
	// TaskDocumentPosted fans out downstream work after a document posts.
	TaskDocumentPosted = "posting:document_posted"
	// TaskStockIntegrity verifies warehouse balances against the movement trail.
	TaskStockIntegrity = "inventory:integrity"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DocumentPostedPayload carries the identity of a freshly posted document.
type DocumentPostedPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Number     string    `json:"number"`
}

// NewDocumentPostedTask constructs an Asynq task.
func NewDocumentPostedTask(payload DocumentPostedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentPosted, data), nil
}

// NewDocumentPostedHandler returns the handler for TaskDocumentPosted tasks.
// Downstream consumers (reporting, notifications) hang off this hook.
func NewDocumentPostedHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DocumentPostedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if logger != nil {
			logger.Info("document posted",
				slog.String("document_id", payload.DocumentID.String()),
				slog.String("number", payload.Number))
		}
		return nil
	}
}

// NewGLIntegrityTask constructs the nightly ledger balance check task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}

// NewStockIntegrityTask constructs the nightly stock balance audit task.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil)
}

// NewIdempotencyCleanupTask constructs the idempotency key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewIdempotencyCleanupHandler returns the handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
		}
		return nil
	}
}
