package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `
id, user_id, credits, amount_uzs, screenshot_url, status, idempotency_key,
admin_id, admin_message, processed_at, created_at, updated_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.Credits, p.AmountUZS, p.ScreenshotURL, p.Status, p.IdempotencyKey,
		p.AdminID, p.AdminMessage, p.ProcessedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key=$1;`
	return r.queryOne(ctx, tx, q, key)
}

func (r *paymentRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	const q = `
SELECT ` + paymentColumns + `
  FROM payments
 WHERE status='pending'
 ORDER BY created_at ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// MarkProcessed is the approve-once guard: only one admin action can move
// the payment out of pending, and only that winner credits the ledger.
func (r *paymentRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, adminID int64, note string, at time.Time) (bool, error) {
	if status != model.PaymentStatusApproved && status != model.PaymentStatusRejected {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments
   SET status=$2, admin_id=$3, admin_message=$4, processed_at=$5, updated_at=$5
 WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, adminID, note, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var status string
	if err := row.Scan(
		&p.ID, &p.UserID, &p.Credits, &p.AmountUZS, &p.ScreenshotURL, &status, &p.IdempotencyKey,
		&p.AdminID, &p.AdminMessage, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
