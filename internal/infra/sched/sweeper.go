// File: internal/infra/sched/sweeper.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-generation/internal/usecase"
)

// Sweeper is the reconciliation loop: it periodically closes generations
// that are still active past their deadline (refunding each one) and
// garbage-collects expired idempotency keys. It is the backstop for worker
// crashes and provider jobs that never report back.
type Sweeper struct {
	interval time.Duration
	genUC    usecase.GenerationUseCase
	log      *zerolog.Logger
}

func NewSweeper(interval time.Duration, genUC usecase.GenerationUseCase, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Sweeper").Logger()
	return &Sweeper{
		interval: interval,
		genUC:    genUC,
		log:      &l,
	}
}

func (w *Sweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting reconciliation sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconciliation sweeper")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.genUC.SweepExpired(ctx, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("stuck generations closed")
			}
		}
	}
}
