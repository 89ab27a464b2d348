package repository

import (
	"context"
	"time"

	"telegram-media-generation/internal/domain/model"
)

type PaymentRepository interface {
	// Save inserts the payment; a duplicate idempotency key is reported as
	// domain.ErrDuplicateRequest.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByKey(ctx context.Context, tx Tx, key string) (*model.Payment, error)
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)

	// MarkProcessed flips pending -> approved|rejected and records who did
	// it. Returns false when the payment already left pending; the loser
	// must not touch the ledger.
	MarkProcessed(ctx context.Context, tx Tx, id string, status model.PaymentStatus, adminID int64, note string, at time.Time) (bool, error)
}
