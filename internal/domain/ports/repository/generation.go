package repository

import (
	"context"
	"time"

	"telegram-media-generation/internal/domain/model"
)

// GenerationRepository persists generation jobs. Status transitions are
// expressed as conditional updates that report whether they won; a `false`
// result means another writer got there first and the caller must treat its
// own attempt as a no-op.
type GenerationRepository interface {
	// Create inserts the row. A violation of the per-user unique constraint
	// on the idempotency key is reported as domain.ErrDuplicateRequest.
	Create(ctx context.Context, tx Tx, g *model.Generation) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.Generation, error)
	FindByUserAndKey(ctx context.Context, tx Tx, userID int64, key string) (*model.Generation, error)
	FindByExternalTaskID(ctx context.Context, tx Tx, taskID string) (*model.Generation, error)
	ListByUser(ctx context.Context, tx Tx, userID int64, limit, offset int) ([]*model.Generation, error)

	// CountActive counts rows in {pending, processing} for the user.
	CountActive(ctx context.Context, tx Tx, userID int64) (int, error)
	// CountCreatedSince counts rows created at or after the cutoff; the
	// rolling rate window is derived from created_at, not a second counter.
	CountCreatedSince(ctx context.Context, tx Tx, userID int64, since time.Time) (int, error)

	// MarkProcessing flips pending -> processing and records the provider
	// task id. Returns false when the row already left pending.
	MarkProcessing(ctx context.Context, tx Tx, id, externalTaskID string) (bool, error)
	// MarkCompleted flips processing -> completed with the result reference.
	// Returns false when the row is not in processing (late completion after
	// a timeout-triggered failure lands here and becomes a no-op).
	MarkCompleted(ctx context.Context, tx Tx, id, resultURL string) (bool, error)
	// MarkTerminated flips an active row to failed or cancelled. Returns
	// false when the row is already terminal.
	MarkTerminated(ctx context.Context, tx Tx, id string, status model.GenerationStatus, errMsg string) (bool, error)
	// MarkRefunded flips refunded false -> true. Exactly one caller can win
	// this update; only the winner may credit the ledger.
	MarkRefunded(ctx context.Context, tx Tx, id string) (bool, error)

	// ListExpiredActive returns active rows whose deadline has passed.
	ListExpiredActive(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Generation, error)
	// ClearIdempotencyKeysBefore nulls out keys on rows older than the
	// cutoff so a stale retry is treated as a fresh request.
	ClearIdempotencyKeysBefore(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}
