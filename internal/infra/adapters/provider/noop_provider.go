// File: internal/infra/adapters/provider/noop_provider.go
package provider

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/adapter"
)

var _ adapter.MediaProviderAdapter = (*NoopProviderAdapter)(nil)

// NoopProviderAdapter implements adapter.MediaProviderAdapter for local/dev
// testing. It logs submissions and returns placeholder URLs after a small
// delay instead of calling a real inference API.
type NoopProviderAdapter struct{}

func NewNoopProviderAdapter() *NoopProviderAdapter {
	return &NoopProviderAdapter{}
}

func (a *NoopProviderAdapter) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return adapter.SubmitResult{}, ctx.Err()
	}
	log.Printf("[noop-provider] model=%s kind=%s prompt=%q\n", req.ModelID, req.Kind, req.Prompt)
	if req.Kind == model.GenerationKindVideo {
		return adapter.SubmitResult{TaskID: uuid.NewString()}, nil
	}
	return adapter.SubmitResult{ResultURL: "https://example.invalid/generated/" + uuid.NewString() + ".png"}, nil
}

func (a *NoopProviderAdapter) Await(ctx context.Context, modelID, taskID string, maxWait time.Duration) (string, error) {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	log.Printf("[noop-provider] await model=%s task=%s\n", modelID, taskID)
	return "https://example.invalid/generated/" + taskID + ".mp4", nil
}
