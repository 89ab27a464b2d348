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

var _ repository.GenerationRepository = (*generationRepo)(nil)

// generationRepo persists generations. The schema carries two constraints the
// correctness of the whole admission core leans on:
//
//	CREATE UNIQUE INDEX generations_user_idem_key
//	  ON generations (user_id, idempotency_key)
//	  WHERE idempotency_key IS NOT NULL;
//
// and a CHECK (credits_charged >= 0). Status transitions are conditional
// UPDATEs keyed on the current status; RowsAffected tells the caller whether
// it won the transition.
type generationRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationRepo(pool *pgxpool.Pool) *generationRepo {
	return &generationRepo{pool: pool}
}

const generationColumns = `
id, user_id, model_id, model_name, kind, prompt, negative_prompt, parameters,
credits_charged, idempotency_key, status, external_task_id, result_url,
error_message, refunded, created_at, timeout_at, started_at, completed_at`

func (r *generationRepo) Create(ctx context.Context, tx repository.Tx, g *model.Generation) error {
	const q = `
INSERT INTO generations (` + generationColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19);`
	_, err := execSQL(ctx, r.pool, tx, q,
		g.ID, g.UserID, g.ModelID, g.ModelName, g.Kind, g.Prompt, g.NegativePrompt, g.Parameters,
		g.CreditsCharged, g.IdempotencyKey, g.Status, g.ExternalTaskID, g.ResultURL,
		g.ErrorMessage, g.Refunded, g.CreatedAt, g.TimeoutAt, g.StartedAt, g.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *generationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Generation, error) {
	const q = `SELECT ` + generationColumns + ` FROM generations WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *generationRepo) FindByUserAndKey(ctx context.Context, tx repository.Tx, userID int64, key string) (*model.Generation, error) {
	const q = `SELECT ` + generationColumns + ` FROM generations WHERE user_id=$1 AND idempotency_key=$2;`
	return r.queryOne(ctx, tx, q, userID, key)
}

func (r *generationRepo) FindByExternalTaskID(ctx context.Context, tx repository.Tx, taskID string) (*model.Generation, error) {
	const q = `SELECT ` + generationColumns + ` FROM generations WHERE external_task_id=$1;`
	return r.queryOne(ctx, tx, q, taskID)
}

func (r *generationRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit, offset int) ([]*model.Generation, error) {
	const q = `
SELECT ` + generationColumns + `
  FROM generations
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT $2 OFFSET $3;`
	return r.queryMany(ctx, tx, q, userID, limit, offset)
}

func (r *generationRepo) CountActive(ctx context.Context, tx repository.Tx, userID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM generations WHERE user_id=$1 AND status IN ('pending','processing');`
	return r.queryCount(ctx, tx, q, userID)
}

func (r *generationRepo) CountCreatedSince(ctx context.Context, tx repository.Tx, userID int64, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM generations WHERE user_id=$1 AND created_at >= $2;`
	return r.queryCount(ctx, tx, q, userID, since)
}

func (r *generationRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id, externalTaskID string) (bool, error) {
	const q = `
UPDATE generations
   SET status='processing', external_task_id=$2, started_at=NOW()
 WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, externalTaskID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *generationRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id, resultURL string) (bool, error) {
	const q = `
UPDATE generations
   SET status='completed', result_url=$2, completed_at=NOW()
 WHERE id=$1 AND status='processing';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, resultURL)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *generationRepo) MarkTerminated(ctx context.Context, tx repository.Tx, id string, status model.GenerationStatus, errMsg string) (bool, error) {
	if status != model.GenerationStatusFailed && status != model.GenerationStatusCancelled {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE generations
   SET status=$2, error_message=$3, completed_at=NOW()
 WHERE id=$1 AND status IN ('pending','processing');`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *generationRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE generations SET refunded=true WHERE id=$1 AND refunded=false;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *generationRepo) ListExpiredActive(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Generation, error) {
	const q = `
SELECT ` + generationColumns + `
  FROM generations
 WHERE status IN ('pending','processing') AND timeout_at < $1
 ORDER BY timeout_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, now, limit)
}

func (r *generationRepo) ClearIdempotencyKeysBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `UPDATE generations SET idempotency_key=NULL WHERE idempotency_key IS NOT NULL AND created_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *generationRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Generation, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	g, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return g, nil
}

func (r *generationRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Generation, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *generationRepo) queryCount(ctx context.Context, tx repository.Tx, sql string, args ...any) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanGeneration(row pgx.Row) (*model.Generation, error) {
	var g model.Generation
	var status, kind string
	if err := row.Scan(
		&g.ID, &g.UserID, &g.ModelID, &g.ModelName, &kind, &g.Prompt, &g.NegativePrompt, &g.Parameters,
		&g.CreditsCharged, &g.IdempotencyKey, &status, &g.ExternalTaskID, &g.ResultURL,
		&g.ErrorMessage, &g.Refunded, &g.CreatedAt, &g.TimeoutAt, &g.StartedAt, &g.CompletedAt,
	); err != nil {
		return nil, err
	}
	g.Status = model.GenerationStatus(status)
	g.Kind = model.GenerationKind(kind)
	return &g, nil
}
