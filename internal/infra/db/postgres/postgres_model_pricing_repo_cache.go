package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
	"telegram-media-generation/internal/infra/metrics"
	red "telegram-media-generation/internal/infra/redis"
)

var _ repository.ModelPricingRepository = (*modelPricingRepoCacheDecorator)(nil)

type modelPricingRepoCacheDecorator struct {
	inner repository.ModelPricingRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewModelPricingRepoCacheDecorator(inner repository.ModelPricingRepository, cache red.RedisClient) repository.ModelPricingRepository {
	return &modelPricingRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func pricingKey(modelID string) string {
	return fmt.Sprintf("model_pricing:%s", modelID)
}

const pricingListKey = "model_pricing:all_active"

func (d *modelPricingRepoCacheDecorator) GetByModelID(ctx context.Context, tx repository.Tx, modelID string) (*model.ModelPricing, error) {
	key := pricingKey(modelID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("model_pricing", "hit")
		var p model.ModelPricing
		if json.Unmarshal([]byte(val), &p) == nil {
			return &p, nil
		}
	}

	metrics.IncCacheRequest("model_pricing", "miss")
	p, err := d.inner.GetByModelID(ctx, tx, modelID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		bytes, _ := json.Marshal(p)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return p, nil
}

// Write operations must invalidate the cache
func (d *modelPricingRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	_ = d.cache.Del(ctx, pricingKey(p.ModelID), pricingListKey)
	return d.inner.Save(ctx, tx, p)
}

func (d *modelPricingRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	val, err := d.cache.Get(ctx, pricingListKey)
	if err == nil {
		metrics.IncCacheRequest("model_pricing_list", "hit")
		var prices []*model.ModelPricing
		if json.Unmarshal([]byte(val), &prices) == nil {
			return prices, nil
		}
	}

	metrics.IncCacheRequest("model_pricing_list", "miss")
	prices, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(prices) > 0 {
		bytes, _ := json.Marshal(prices)
		_ = d.cache.Set(ctx, pricingListKey, bytes, d.ttl)
	}
	return prices, nil
}
