// File: internal/usecase/generation_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/config"
	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
	"telegram-media-generation/internal/infra/logging"
	"telegram-media-generation/internal/infra/metrics"
)

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// StartRequest carries one generation attempt from the transport layer.
type StartRequest struct {
	UserID         int64
	ModelID        string
	Prompt         string
	NegativePrompt string
	Parameters     []byte
	IdempotencyKey string
}

// GenerationUseCase owns the lifecycle of a paid generation: admission
// (caps + debit + reservation in one transaction), the handoff transitions
// driven by the worker, user-facing cancel/status/history, and the refunds
// that accompany every failure path.
type GenerationUseCase interface {
	// Start admits a new generation or refuses it, returning the balance
	// left after the charge so the caller never needs a second read. On an
	// idempotency-key replay it returns the previously created generation
	// together with domain.ErrDuplicateRequest; the caller decides how to
	// present that.
	Start(ctx context.Context, req StartRequest) (*model.Generation, int64, error)

	// BeginProcessing records the provider task id and flips the job to
	// processing. Returns false when the job already left pending.
	BeginProcessing(ctx context.Context, id, externalTaskID string) (bool, error)

	// Complete finishes a processing job with its result. A completion that
	// arrives after the job was failed or cancelled is a no-op; the credits
	// stay refunded.
	Complete(ctx context.Context, id, resultURL string) error

	// Fail closes an active job and refunds its charge exactly once.
	Fail(ctx context.Context, id, errMsg string) error

	// Cancel is the user-initiated failure path. Only the owner may cancel,
	// and only while the job is still active. Returns the closed record and
	// the balance after the refund.
	Cancel(ctx context.Context, userID int64, id string) (*model.Generation, int64, error)

	Status(ctx context.Context, userID int64, id string) (*model.Generation, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*model.Generation, error)

	// FindByTask resolves a provider task id back to its generation. Used by
	// the provider webhook path.
	FindByTask(ctx context.Context, externalTaskID string) (*model.Generation, error)

	// SweepExpired fails every active job whose deadline passed (refunding
	// each) and garbage-collects idempotency keys past the retention window.
	// Returns the number of jobs closed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type generationUC struct {
	users  repository.UserRepository
	gens   repository.GenerationRepository
	txns   repository.TransactionRepository
	prices repository.ModelPricingRepository
	tm     repository.TransactionManager
	limits config.LimitsConfig
	log    *zerolog.Logger
}

func NewGenerationUseCase(
	users repository.UserRepository,
	gens repository.GenerationRepository,
	txns repository.TransactionRepository,
	prices repository.ModelPricingRepository,
	tm repository.TransactionManager,
	limits config.LimitsConfig,
	logger *zerolog.Logger,
) *generationUC {
	return &generationUC{
		users:  users,
		gens:   gens,
		txns:   txns,
		prices: prices,
		tm:     tm,
		limits: limits,
		log:    logger,
	}
}

// Start runs the whole admission path in ONE database transaction: the
// per-user advisory lock, both caps, the reservation insert (which carries
// the idempotency key), the conditional debit, and the audit record. Any
// refusal rolls the reservation back, so a request that was not charged
// leaves no trace and a later retry with the same key starts fresh.
func (u *generationUC) Start(ctx context.Context, req StartRequest) (*model.Generation, int64, error) {
	defer logging.TraceDuration(u.log, "GenerationUC.Start")()

	pricing, err := u.prices.GetByModelID(ctx, repository.NoTX, req.ModelID)
	if err != nil {
		return nil, 0, err
	}
	if pricing == nil || !pricing.Active {
		return nil, 0, domain.ErrNotFound
	}

	gen, err := model.NewGeneration(
		ulid.Make().String(), req.UserID, pricing.ModelID, pricing.DisplayName,
		pricing.Kind, req.Prompt, pricing.PriceCredits, u.limits.GenerationTimeout,
	)
	if err != nil {
		return nil, 0, err
	}
	gen.NegativePrompt = req.NegativePrompt
	gen.Parameters = req.Parameters
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		gen.IdempotencyKey = &key
	}

	var newBalance int64
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if usr.IsBanned {
			return domain.ErrUserBanned
		}

		if err := u.users.LockUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		// A replay must surface the original admission, not a cap error, so
		// the key lookup precedes the counts. The unique index still decides
		// races between concurrent first attempts.
		if gen.IdempotencyKey != nil {
			_, ferr := u.gens.FindByUserAndKey(ctx, tx, req.UserID, *gen.IdempotencyKey)
			if ferr == nil {
				return domain.ErrDuplicateRequest
			}
			if !errors.Is(ferr, domain.ErrNotFound) {
				return ferr
			}
		}

		active, err := u.gens.CountActive(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if active >= u.limits.MaxActive {
			return domain.ErrMaxActiveGenerations
		}

		recent, err := u.gens.CountCreatedSince(ctx, tx, req.UserID, time.Now().Add(-time.Minute))
		if err != nil {
			return err
		}
		if recent >= u.limits.RatePerMinute {
			return domain.ErrRateLimitExceeded
		}

		// Reserve the idempotency key before touching the balance: a
		// duplicate insert aborts here and the debit never runs.
		if err := u.gens.Create(ctx, tx, gen); err != nil {
			return err
		}

		if gen.CreditsCharged == 0 {
			newBalance = usr.Credits
			return nil
		}
		newBalance, err = u.users.DebitCredits(ctx, tx, req.UserID, gen.CreditsCharged)
		if err != nil {
			return err
		}

		return u.txns.Save(ctx, tx, &model.Transaction{
			ID:          ulid.Make().String(),
			UserID:      req.UserID,
			Type:        model.TransactionTypeGeneration,
			Amount:      -gen.CreditsCharged,
			ReferenceID: gen.ID,
			Description: "generation " + pricing.DisplayName,
			CreatedAt:   time.Now(),
		})
	})

	switch {
	case err == nil:
		metrics.IncGenerationStarted(gen.ModelID, string(gen.Kind))
		metrics.AddCreditsDebited(gen.CreditsCharged)
		logging.With(ctx, u.log).Info().Str("generation_id", gen.ID).
			Str("model", gen.ModelID).Int64("cost", gen.CreditsCharged).
			Int64("new_balance", newBalance).Msg("generation admitted")
		return gen, newBalance, nil

	case errors.Is(err, domain.ErrDuplicateRequest):
		metrics.IncGenerationDuplicate()
		existing, ferr := u.gens.FindByUserAndKey(ctx, repository.NoTX, req.UserID, req.IdempotencyKey)
		if ferr != nil {
			return nil, 0, ferr
		}
		return existing, 0, domain.ErrDuplicateRequest

	case errors.Is(err, domain.ErrInsufficientCredits):
		metrics.IncGenerationRejected("insufficient_credits")
		return nil, 0, err
	case errors.Is(err, domain.ErrMaxActiveGenerations):
		metrics.IncGenerationRejected("max_active")
		return nil, 0, err
	case errors.Is(err, domain.ErrRateLimitExceeded):
		metrics.IncGenerationRejected("rate_limited")
		return nil, 0, err
	case errors.Is(err, domain.ErrUserBanned):
		metrics.IncGenerationRejected("banned")
		return nil, 0, err
	default:
		return nil, 0, err
	}
}

func (u *generationUC) BeginProcessing(ctx context.Context, id, externalTaskID string) (bool, error) {
	return u.gens.MarkProcessing(ctx, repository.NoTX, id, externalTaskID)
}

func (u *generationUC) Complete(ctx context.Context, id, resultURL string) error {
	won, err := u.gens.MarkCompleted(ctx, repository.NoTX, id, resultURL)
	if err != nil {
		return err
	}
	if !won {
		// Already failed/cancelled; the refund stands and the result is dropped.
		u.log.Warn().Str("generation_id", id).Msg("late completion ignored")
		return nil
	}
	g, err := u.gens.FindByID(ctx, repository.NoTX, id)
	if err == nil && g != nil {
		metrics.IncGenerationFinished(g.ModelID, string(model.GenerationStatusCompleted))
		metrics.ObserveGenerationLatency(g.ModelID, time.Since(g.CreatedAt).Seconds(), true)
	}
	return nil
}

func (u *generationUC) Fail(ctx context.Context, id, errMsg string) error {
	_, _, err := u.terminate(ctx, id, 0, model.GenerationStatusFailed, errMsg)
	return err
}

func (u *generationUC) Cancel(ctx context.Context, userID int64, id string) (*model.Generation, int64, error) {
	g, err := u.gens.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, 0, err
	}
	if g.UserID != userID {
		return nil, 0, domain.ErrPermissionDenied
	}
	if g.Status.IsTerminal() {
		return nil, 0, domain.ErrGenerationTerminal
	}
	closed, balance, err := u.terminate(ctx, id, userID, model.GenerationStatusCancelled, "cancelled by user")
	if err != nil {
		return nil, 0, err
	}
	if !closed {
		// The job went terminal between the check above and the conditional
		// flip; a completion that won the race keeps its result.
		return nil, 0, domain.ErrGenerationTerminal
	}
	g, err = u.gens.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, 0, err
	}
	return g, balance, nil
}

// terminate closes an active job and issues its refund. The status flip and
// the refund run in the same transaction; the refunded-flag update decides
// which of any concurrent closers actually credits the balance. Reports
// whether this call won the close, and the owner's balance after it did.
// ownerID zero means system-initiated.
func (u *generationUC) terminate(ctx context.Context, id string, ownerID int64, status model.GenerationStatus, errMsg string) (bool, int64, error) {
	var (
		closed   bool
		refunded bool
		balance  int64
		g        *model.Generation
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		g, err = u.gens.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		closed, err = u.gens.MarkTerminated(ctx, tx, id, status, errMsg)
		if err != nil {
			return err
		}
		if !closed {
			return nil
		}
		refunded, balance, err = u.refundOnce(ctx, tx, g)
		if err != nil {
			return err
		}
		if !refunded {
			usr, err := u.users.FindByID(ctx, tx, g.UserID)
			if err != nil {
				return err
			}
			balance = usr.Credits
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if closed {
		metrics.IncGenerationFinished(g.ModelID, string(status))
		metrics.ObserveGenerationLatency(g.ModelID, time.Since(g.CreatedAt).Seconds(), false)
		u.log.Info().Str("generation_id", id).Int64("user_id", g.UserID).
			Str("status", string(status)).Bool("refunded", refunded).Str("reason", errMsg).
			Msg("generation closed")
	}
	return closed, balance, nil
}

// refundOnce credits back the charge if and only if this caller wins the
// refunded-flag update, returning the post-credit balance. Losing the flag
// race is success: someone else already returned the credits.
func (u *generationUC) refundOnce(ctx context.Context, tx repository.Tx, g *model.Generation) (bool, int64, error) {
	if g.CreditsCharged <= 0 {
		return false, 0, nil
	}
	won, err := u.gens.MarkRefunded(ctx, tx, g.ID)
	if err != nil {
		return false, 0, err
	}
	if !won {
		metrics.IncRefund("already_refunded")
		return false, 0, nil
	}
	balance, err := u.users.CreditCredits(ctx, tx, g.UserID, g.CreditsCharged)
	if err != nil {
		return false, 0, err
	}
	if err := u.txns.Save(ctx, tx, &model.Transaction{
		ID:          ulid.Make().String(),
		UserID:      g.UserID,
		Type:        model.TransactionTypeRefund,
		Amount:      g.CreditsCharged,
		ReferenceID: g.ID,
		Description: "refund for generation " + g.ModelName,
		CreatedAt:   time.Now(),
	}); err != nil {
		return false, 0, err
	}
	metrics.IncRefund("issued")
	metrics.AddCreditsCredited("refund", g.CreditsCharged)
	return true, balance, nil
}

func (u *generationUC) Status(ctx context.Context, userID int64, id string) (*model.Generation, error) {
	g, err := u.gens.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}
	return g, nil
}

func (u *generationUC) FindByTask(ctx context.Context, externalTaskID string) (*model.Generation, error) {
	return u.gens.FindByExternalTaskID(ctx, repository.NoTX, externalTaskID)
}

func (u *generationUC) History(ctx context.Context, userID int64, limit, offset int) ([]*model.Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return u.gens.ListByUser(ctx, repository.NoTX, userID, limit, offset)
}

// SweepExpired is the reconciliation pass: any job still active past its
// deadline is closed as failed with a timeout message, refunding the charge
// through the same refund-once path every other failure uses. It also nulls
// idempotency keys older than the retention window so long-stale retries
// are admitted as new work rather than replayed.
func (u *generationUC) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := u.gens.ListExpiredActive(ctx, repository.NoTX, now, 100)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, g := range expired {
		if err := u.Fail(ctx, g.ID, domain.ErrGenerationTimeout.Error()); err != nil {
			u.log.Error().Err(err).Str("generation_id", g.ID).Msg("sweep: close failed")
			continue
		}
		swept++
	}
	if swept > 0 {
		metrics.AddGenerationsSwept(swept)
	}

	cleared, err := u.gens.ClearIdempotencyKeysBefore(ctx, repository.NoTX, now.Add(-u.limits.IdempotencyRetention))
	if err != nil {
		u.log.Error().Err(err).Msg("sweep: idempotency gc failed")
	} else if cleared > 0 {
		u.log.Debug().Int64("cleared", cleared).Msg("sweep: idempotency keys gc")
	}
	return swept, nil
}
