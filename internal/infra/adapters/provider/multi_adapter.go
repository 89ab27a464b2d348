// File: internal/infra/adapters/provider/multi_adapter.go
package provider

import (
	"context"
	"strings"
	"time"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/ports/adapter"
)

var _ adapter.MediaProviderAdapter = (*MultiProviderAdapter)(nil)

// MultiProviderAdapter routes each model to its backing provider. The
// catalog's model ids carry enough of a naming convention to route on
// prefix; explicit overrides win.
type MultiProviderAdapter struct {
	defaultProvider string // e.g., "aiml" or "google"
	byProvider      map[string]adapter.MediaProviderAdapter
	modelToProvider map[string]string
}

func NewMultiProviderAdapter(
	defaultProvider string,
	byProvider map[string]adapter.MediaProviderAdapter,
	modelToProvider map[string]string,
) *MultiProviderAdapter {
	return &MultiProviderAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiProviderAdapter) resolveProvider(modelID string) string {
	if p := m.modelToProvider[modelID]; p != "" {
		return strings.ToLower(p)
	}
	// Catalog ids may carry a vendor segment, e.g. "google/imagen-4".
	l := strings.ToLower(modelID)
	bare := l
	if i := strings.IndexByte(l, '/'); i > 0 {
		if vendor := l[:i]; m.byProvider[vendor] != nil {
			return vendor
		}
		bare = l[i+1:]
	}
	switch {
	case strings.HasPrefix(bare, "imagen"), strings.HasPrefix(bare, "veo"), strings.HasPrefix(bare, "gemini"):
		return "google"
	default:
		return m.defaultProvider
	}
}

func (m *MultiProviderAdapter) pick(modelID string) adapter.MediaProviderAdapter {
	if a := m.byProvider[m.resolveProvider(modelID)]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiProviderAdapter) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	a := m.pick(req.ModelID)
	if a == nil {
		return adapter.SubmitResult{}, domain.ErrProviderFailure
	}
	return a.Submit(ctx, req)
}

func (m *MultiProviderAdapter) Await(ctx context.Context, modelID, taskID string, maxWait time.Duration) (string, error) {
	a := m.pick(modelID)
	if a == nil {
		return "", domain.ErrProviderFailure
	}
	return a.Await(ctx, modelID, taskID, maxWait)
}
