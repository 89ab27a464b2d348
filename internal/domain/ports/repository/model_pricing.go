package repository

import (
	"context"

	"telegram-media-generation/internal/domain/model"
)

type ModelPricingRepository interface {
	// GetByModelID returns the active pricing entry for a model.
	GetByModelID(ctx context.Context, tx Tx, modelID string) (*model.ModelPricing, error)
	// Save upserts admin changes.
	Save(ctx context.Context, tx Tx, p *model.ModelPricing) error
	ListActive(ctx context.Context, tx Tx) ([]*model.ModelPricing, error)
}
