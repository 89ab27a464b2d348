package model

import "time"

// ModelPricing is one entry of the generation model catalog: what a single
// run of the model costs and roughly how long it takes. The catalog replaces
// hard-coded price maps so operators can adjust pricing without a deploy.
type ModelPricing struct {
	ID               string // UUID
	ModelID          string // e.g. "kling-video/v2.0/master/text-to-video"
	DisplayName      string // e.g. "Kling 2.0 Master"
	Kind             GenerationKind
	PriceCredits     int64
	EstimatedSeconds int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
