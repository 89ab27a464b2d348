// File: internal/infra/adapters/provider/aiml_adapter.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.MediaProviderAdapter = (*AIMLAdapter)(nil)

// AIMLAdapter talks to the AIML API gateway (https://api.aimlapi.com).
// Image models go through the OpenAI-compatible images endpoint; video
// models use AIML's own async generation API: submit returns a generation
// id, and the result is fetched by polling.
type AIMLAdapter struct {
	apiKey    string
	base      string // e.g., https://api.aimlapi.com/v1
	images    openai.Client
	client    *http.Client
	pollEvery time.Duration
}

func NewAIMLAdapter(apiKey, base string, pollEvery time.Duration) (*AIMLAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("aiml api key empty")
	}
	if base == "" {
		base = "https://api.aimlapi.com/v1"
	}
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	base = strings.TrimRight(base, "/")
	return &AIMLAdapter{
		apiKey:    apiKey,
		base:      base,
		images:    openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(base)),
		client:    &http.Client{Timeout: 60 * time.Second},
		pollEvery: pollEvery,
	}, nil
}

func (a *AIMLAdapter) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	if req.Kind == model.GenerationKindVideo {
		return a.submitVideo(ctx, req)
	}
	return a.submitImage(ctx, req)
}

// submitImage is synchronous: the gateway answers with the image URL directly.
func (a *AIMLAdapter) submitImage(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	resp, err := a.images.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  req.ModelID,
		Prompt: req.Prompt,
		N:      openai.Int(1),
	})
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("aiml images: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return adapter.SubmitResult{}, errors.New("aiml images: empty response")
	}
	return adapter.SubmitResult{ResultURL: resp.Data[0].URL}, nil
}

type aimlVideoRequest struct {
	Model          string          `json:"model"`
	Prompt         string          `json:"prompt"`
	NegativePrompt string          `json:"negative_prompt,omitempty"`
	Extra          json.RawMessage `json:"extra,omitempty"`
}

type aimlVideoStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | generating | completed | error
	Video  struct {
		URL string `json:"url"`
	} `json:"video"`
	Error string `json:"error"`
}

func (a *AIMLAdapter) submitVideo(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	body, _ := json.Marshal(aimlVideoRequest{
		Model:          req.ModelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Extra:          req.Parameters,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v2/generate/video/generation", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return adapter.SubmitResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return adapter.SubmitResult{}, fmt.Errorf("aiml video submit http %d", resp.StatusCode)
	}
	var out aimlVideoStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.SubmitResult{}, err
	}
	if out.ID == "" {
		return adapter.SubmitResult{}, errors.New("aiml video submit: no generation id")
	}
	return adapter.SubmitResult{TaskID: out.ID}, nil
}

// Await polls the generation until it resolves. maxWait caps the total wait
// on top of whatever deadline ctx already carries.
func (a *AIMLAdapter) Await(ctx context.Context, modelID, taskID string, maxWait time.Duration) (string, error) {
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", domain.ErrGenerationTimeout
		case <-ticker.C:
			st, err := a.fetchStatus(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return "", domain.ErrGenerationTimeout
				}
				return "", err
			}
			switch st.Status {
			case "completed":
				if st.Video.URL == "" {
					return "", errors.New("aiml video: completed without url")
				}
				return st.Video.URL, nil
			case "error":
				msg := st.Error
				if msg == "" {
					msg = "generation error"
				}
				return "", fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg)
			}
			// queued / generating: keep polling
		}
	}
}

func (a *AIMLAdapter) fetchStatus(ctx context.Context, taskID string) (*aimlVideoStatus, error) {
	u := a.base + "/v2/generate/video/generation?generation_id=" + url.QueryEscape(taskID)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aiml video status http %d", resp.StatusCode)
	}
	var st aimlVideoStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
