package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

var _ repository.ModelPricingRepository = (*modelPricingRepo)(nil)

type modelPricingRepo struct {
	pool *pgxpool.Pool
}

func NewModelPricingRepo(pool *pgxpool.Pool) *modelPricingRepo {
	return &modelPricingRepo{pool: pool}
}

func (r *modelPricingRepo) GetByModelID(ctx context.Context, tx repository.Tx, modelID string) (*model.ModelPricing, error) {
	const q = `
SELECT id, model_id, display_name, kind, price_credits, estimated_seconds, active, created_at, updated_at
  FROM model_pricing
 WHERE model_id=$1 AND active=true;`
	row, err := pickRow(ctx, r.pool, tx, q, modelID)
	if err != nil {
		return nil, err
	}
	p, err := scanPricing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *modelPricingRepo) Save(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now()
	const q = `
INSERT INTO model_pricing (id, model_id, display_name, kind, price_credits, estimated_seconds, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (model_id) DO UPDATE SET
  display_name=EXCLUDED.display_name,
  kind=EXCLUDED.kind,
  price_credits=EXCLUDED.price_credits,
  estimated_seconds=EXCLUDED.estimated_seconds,
  active=EXCLUDED.active,
  updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ModelID, p.DisplayName, p.Kind, p.PriceCredits, p.EstimatedSeconds, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *modelPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	const q = `
SELECT id, model_id, display_name, kind, price_credits, estimated_seconds, active, created_at, updated_at
  FROM model_pricing
 WHERE active=true
 ORDER BY model_id;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ModelPricing
	for rows.Next() {
		p, err := scanPricing(rows)
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

func scanPricing(row pgx.Row) (*model.ModelPricing, error) {
	var p model.ModelPricing
	var kind string
	if err := row.Scan(&p.ID, &p.ModelID, &p.DisplayName, &kind, &p.PriceCredits, &p.EstimatedSeconds, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Kind = model.GenerationKind(kind)
	return &p, nil
}
