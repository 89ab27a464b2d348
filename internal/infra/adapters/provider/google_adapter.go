// File: internal/infra/adapters/provider/google_adapter.go
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/adapter"
)

var _ adapter.MediaProviderAdapter = (*GoogleAdapter)(nil)

// GoogleAdapter runs imagen-* and veo-* models through the official genai
// SDK. Imagen answers synchronously; Veo returns a long-running operation
// that Await polls by name.
type GoogleAdapter struct {
	client    *genai.Client
	pollEvery time.Duration
}

func NewGoogleAdapter(ctx context.Context, apiKey string, pollEvery time.Duration) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("google: empty api key")
	}
	if pollEvery <= 0 {
		pollEvery = 10 * time.Second
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GoogleAdapter{client: c, pollEvery: pollEvery}, nil
}

func (g *GoogleAdapter) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	if req.Kind == model.GenerationKindVideo {
		op, err := g.client.Models.GenerateVideos(ctx, req.ModelID, req.Prompt, nil, &genai.GenerateVideosConfig{
			NegativePrompt: req.NegativePrompt,
		})
		if err != nil {
			return adapter.SubmitResult{}, fmt.Errorf("google veo: %w", err)
		}
		return adapter.SubmitResult{TaskID: op.Name}, nil
	}

	resp, err := g.client.Models.GenerateImages(ctx, req.ModelID, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("google imagen: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return adapter.SubmitResult{}, errors.New("google imagen: empty response")
	}
	img := resp.GeneratedImages[0].Image
	if img.GCSURI != "" {
		return adapter.SubmitResult{ResultURL: img.GCSURI}, nil
	}
	// The Gemini API backend returns inline bytes; hand them over as a data
	// URI so the result reference stays a single string.
	return adapter.SubmitResult{
		ResultURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.ImageBytes),
	}, nil
}

func (g *GoogleAdapter) Await(ctx context.Context, modelID, taskID string, maxWait time.Duration) (string, error) {
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	op := &genai.GenerateVideosOperation{Name: taskID}
	ticker := time.NewTicker(g.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", domain.ErrGenerationTimeout
		case <-ticker.C:
			cur, err := g.client.Operations.GetVideosOperation(ctx, op, nil)
			if err != nil {
				if ctx.Err() != nil {
					return "", domain.ErrGenerationTimeout
				}
				return "", fmt.Errorf("google veo poll: %w", err)
			}
			if !cur.Done {
				op = cur
				continue
			}
			if cur.Response == nil || len(cur.Response.GeneratedVideos) == 0 ||
				cur.Response.GeneratedVideos[0].Video == nil {
				return "", fmt.Errorf("%w: veo finished without video", domain.ErrProviderFailure)
			}
			return cur.Response.GeneratedVideos[0].Video.URI, nil
		}
	}
}
