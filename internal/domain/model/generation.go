package model

import (
	"time"

	"telegram-media-generation/internal/domain"
)

type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
	GenerationStatusCancelled  GenerationStatus = "cancelled"
)

// IsActive reports whether the status still occupies a concurrency slot.
func (s GenerationStatus) IsActive() bool {
	return s == GenerationStatusPending || s == GenerationStatusProcessing
}

// IsTerminal reports whether no further transition is allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed || s == GenerationStatusCancelled
}

type GenerationKind string

const (
	GenerationKindImage GenerationKind = "image"
	GenerationKindVideo GenerationKind = "video"
)

// Generation is one paid media-generation job. After creation only status
// transitions (plus the fields owned by each transition) may change; the
// charge amount is immutable and the refunded flag flips to true at most once.
type Generation struct {
	ID             string // ULID
	UserID         int64
	ModelID        string
	ModelName      string
	Kind           GenerationKind
	Prompt         string
	NegativePrompt string
	Parameters     []byte // opaque JSON payload forwarded to the provider
	CreditsCharged int64
	IdempotencyKey *string
	Status         GenerationStatus
	ExternalTaskID string
	ResultURL      string
	ErrorMessage   string
	Refunded       bool
	CreatedAt      time.Time
	TimeoutAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func NewGeneration(id string, userID int64, modelID, modelName string, kind GenerationKind, prompt string, cost int64, deadline time.Duration) (*Generation, error) {
	if id == "" || userID <= 0 || modelID == "" || prompt == "" {
		return nil, domain.ErrInvalidArgument
	}
	if cost < 0 || deadline <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Generation{
		ID:             id,
		UserID:         userID,
		ModelID:        modelID,
		ModelName:      modelName,
		Kind:           kind,
		Prompt:         prompt,
		CreditsCharged: cost,
		Status:         GenerationStatusPending,
		CreatedAt:      now,
		TimeoutAt:      now.Add(deadline),
	}, nil
}
