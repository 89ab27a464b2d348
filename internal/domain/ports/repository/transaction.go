package repository

import (
	"context"

	"telegram-media-generation/internal/domain/model"
)

type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	ListByUser(ctx context.Context, tx Tx, userID int64, limit, offset int) ([]*model.Transaction, error)
}
