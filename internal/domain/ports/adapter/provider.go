package adapter

import (
	"context"
	"time"

	"telegram-media-generation/internal/domain/model"
)

// SubmitRequest carries everything a provider needs to run one generation.
type SubmitRequest struct {
	ModelID        string
	Kind           model.GenerationKind
	Prompt         string
	NegativePrompt string
	Parameters     []byte // raw JSON, forwarded untouched
}

// SubmitResult is the provider's answer to a submission. Image models usually
// answer synchronously (ResultURL set, no task to poll); video models return
// a task id to be awaited.
type SubmitResult struct {
	TaskID    string
	ResultURL string
}

// MediaProviderAdapter submits generation jobs to an external inference API.
// Its failure modes surface to the orchestrator only as Fail transitions; the
// ledger never talks to it directly.
type MediaProviderAdapter interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	// Await polls the provider until the task resolves or maxWait elapses.
	// A timeout is returned as domain.ErrGenerationTimeout.
	Await(ctx context.Context, modelID, taskID string, maxWait time.Duration) (resultURL string, err error)
}
