// File: internal/usecase/pricing_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

var _ PricingUseCase = (*pricingUC)(nil)

// PricingUseCase manages the generation model catalog.
type PricingUseCase interface {
	// List returns all active model pricing rows.
	List(ctx context.Context) ([]*model.ModelPricing, error)
	// Get returns the active pricing for a specific model id.
	Get(ctx context.Context, modelID string) (*model.ModelPricing, error)
	// Upsert creates or replaces a catalog entry.
	Upsert(ctx context.Context, modelID, displayName string, kind model.GenerationKind, priceCredits int64, estimatedSeconds int) (*model.ModelPricing, error)
	// Deactivate soft-deletes a model; running generations are unaffected.
	Deactivate(ctx context.Context, modelID string) error
}

type pricingUC struct {
	prices repository.ModelPricingRepository
	log    *zerolog.Logger
}

func NewPricingUseCase(prices repository.ModelPricingRepository, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{prices: prices, log: logger}
}

func (p *pricingUC) List(ctx context.Context) ([]*model.ModelPricing, error) {
	return p.prices.ListActive(ctx, repository.NoTX)
}

func (p *pricingUC) Get(ctx context.Context, modelID string) (*model.ModelPricing, error) {
	return p.prices.GetByModelID(ctx, repository.NoTX, normalizeModelID(modelID))
}

func (p *pricingUC) Upsert(ctx context.Context, modelID, displayName string, kind model.GenerationKind, priceCredits int64, estimatedSeconds int) (*model.ModelPricing, error) {
	mid := normalizeModelID(modelID)
	if mid == "" || displayName == "" || priceCredits <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if kind != model.GenerationKindImage && kind != model.GenerationKindVideo {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	rec := &model.ModelPricing{
		ID:               uuid.NewString(),
		ModelID:          mid,
		DisplayName:      displayName,
		Kind:             kind,
		PriceCredits:     priceCredits,
		EstimatedSeconds: estimatedSeconds,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.prices.Save(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	p.log.Info().Str("model", mid).Int64("price", priceCredits).Msg("pricing upserted")
	return rec, nil
}

func (p *pricingUC) Deactivate(ctx context.Context, modelID string) error {
	rec, err := p.prices.GetByModelID(ctx, repository.NoTX, normalizeModelID(modelID))
	if err != nil {
		return err
	}
	if !rec.Active {
		return nil
	}
	rec.Active = false
	rec.UpdatedAt = time.Now()
	return p.prices.Save(ctx, repository.NoTX, rec)
}

func normalizeModelID(s string) string {
	return strings.TrimSpace(s)
}
