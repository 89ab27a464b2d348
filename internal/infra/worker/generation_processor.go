// File: internal/infra/worker/generation_processor.go
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/adapter"
	"telegram-media-generation/internal/infra/logging"
	"telegram-media-generation/internal/usecase"
)

// GenerationProcessor drives an admitted generation through the provider:
// submit, record the external task id, wait for the result, then settle the
// job through the use case so refunds and late-arrival rules apply.
type GenerationProcessor struct {
	uc       usecase.GenerationUseCase
	provider adapter.MediaProviderAdapter
	bot      adapter.TelegramNotifier
	pool     *Pool
	log      *zerolog.Logger
}

func NewGenerationProcessor(
	uc usecase.GenerationUseCase,
	provider adapter.MediaProviderAdapter,
	bot adapter.TelegramNotifier,
	pool *Pool,
	logger *zerolog.Logger,
) *GenerationProcessor {
	l := logger.With().Str("component", "GenerationProcessor").Logger()
	return &GenerationProcessor{
		uc:       uc,
		provider: provider,
		bot:      bot,
		pool:     pool,
		log:      &l,
	}
}

// Dispatch queues the generation for processing. A full queue is reported to
// the caller; the job stays pending and the sweeper will close it if nothing
// retries before the deadline.
func (p *GenerationProcessor) Dispatch(g *model.Generation) error {
	return p.pool.Submit(func(ctx context.Context) error {
		p.run(ctx, g)
		return nil
	})
}

func (p *GenerationProcessor) run(ctx context.Context, g *model.Generation) {
	ctx, cancel := context.WithDeadline(ctx, g.TimeoutAt)
	defer cancel()
	ctx = logging.WithGenerationID(logging.WithUserID(ctx, g.UserID), g.ID)
	log := logging.With(ctx, p.log)

	res, err := p.provider.Submit(ctx, adapter.SubmitRequest{
		ModelID:        g.ModelID,
		Kind:           g.Kind,
		Prompt:         g.Prompt,
		NegativePrompt: g.NegativePrompt,
		Parameters:     g.Parameters,
	})
	if err != nil {
		log.Error().Err(err).Msg("provider submit failed")
		p.fail(g, "provider error: "+err.Error())
		return
	}

	won, err := p.uc.BeginProcessing(ctx, g.ID, res.TaskID)
	if err != nil {
		log.Error().Err(err).Msg("begin processing failed")
		return
	}
	if !won {
		// Cancelled or timed out between admission and submit; drop the result.
		log.Warn().Msg("job left pending before handoff")
		return
	}

	resultURL := res.ResultURL
	if resultURL == "" {
		resultURL, err = p.provider.Await(ctx, g.ModelID, res.TaskID, time.Until(g.TimeoutAt))
		if err != nil {
			log.Error().Err(err).Str("task_id", res.TaskID).Msg("provider await failed")
			p.fail(g, "provider error: "+err.Error())
			return
		}
	}

	if err := p.uc.Complete(context.Background(), g.ID, resultURL); err != nil {
		log.Error().Err(err).Msg("complete failed")
		return
	}
	p.notify(g, resultURL, "")
}

// fail settles the job on a background context so a provider-side deadline
// does not also abort the refund.
func (p *GenerationProcessor) fail(g *model.Generation, reason string) {
	if err := p.uc.Fail(context.Background(), g.ID, reason); err != nil {
		p.log.Error().Err(err).Str("generation_id", g.ID).Msg("fail settlement error")
		return
	}
	p.notify(g, "", reason)
}

// notify sends the outcome to the user. Best effort only: delivery problems
// never affect job state.
func (p *GenerationProcessor) notify(g *model.Generation, resultURL, errMsg string) {
	if p.bot == nil {
		return
	}
	params := adapter.SendMessageParams{ChatID: g.UserID}
	if resultURL != "" {
		params.Text = "Your " + string(g.Kind) + " is ready."
		params.MediaURL = resultURL
		params.IsVideo = g.Kind == model.GenerationKindVideo
	} else {
		params.Text = "Generation failed, credits refunded: " + errMsg
	}
	if err := p.bot.SendMessage(context.Background(), params); err != nil {
		p.log.Error().Err(err).Int64("user_id", g.UserID).Msg("result notification failed")
	}
}
