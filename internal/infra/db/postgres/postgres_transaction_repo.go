package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (id, user_id, type, amount, reference_id, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.Type, t.Amount, t.ReferenceID, t.Description, t.CreatedAt)
	return err
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit, offset int) ([]*model.Transaction, error) {
	const q = `
SELECT id, user_id, type, amount, reference_id, description, created_at
  FROM transactions
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		t.Type = model.TransactionType(typ)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
