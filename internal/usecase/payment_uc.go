// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
	"telegram-media-generation/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase handles the screenshot-reviewed top-up flow. Credits reach
// the ledger only through Approve, and only for the admin who wins the
// pending -> approved transition.
type PaymentUseCase interface {
	// Submit files a top-up request for review. A replayed idempotency key
	// returns the earlier payment with domain.ErrDuplicateRequest.
	Submit(ctx context.Context, userID, credits, amountUZS int64, screenshotURL, idempotencyKey string) (*model.Payment, error)
	// Approve credits the user and records the approving admin. Returns
	// domain.ErrPaymentProcessed when the payment already left pending.
	Approve(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error)
	// Reject closes the payment without touching the ledger.
	Reject(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error)
	ListPending(ctx context.Context, limit int) ([]*model.Payment, error)
	Get(ctx context.Context, paymentID string) (*model.Payment, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	txns     repository.TransactionRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	txns repository.TransactionRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments: payments,
		users:    users,
		txns:     txns,
		tm:       tm,
		log:      logger,
	}
}

func (u *paymentUC) Submit(ctx context.Context, userID, credits, amountUZS int64, screenshotURL, idempotencyKey string) (*model.Payment, error) {
	if userID <= 0 || credits <= 0 || amountUZS <= 0 || screenshotURL == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	p := &model.Payment{
		ID:            uuid.NewString(),
		UserID:        userID,
		Credits:       credits,
		AmountUZS:     amountUZS,
		ScreenshotURL: screenshotURL,
		Status:        model.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		p.IdempotencyKey = &key
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) && idempotencyKey != "" {
			existing, ferr := u.payments.FindByKey(ctx, repository.NoTX, idempotencyKey)
			if ferr != nil {
				return nil, ferr
			}
			return existing, domain.ErrDuplicateRequest
		}
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	u.log.Info().Int64("user_id", userID).Str("payment_id", p.ID).
		Int64("credits", credits).Msg("top-up submitted")
	return p, nil
}

// Approve runs the status flip, the credit, and the audit record in one
// transaction. The conditional MarkProcessed is what makes double-approval
// impossible: the second admin's transaction sees zero rows updated and
// aborts before the ledger is touched.
func (u *paymentUC) Approve(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error) {
	var p *model.Payment
	now := time.Now()
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		p, err = u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		won, err := u.payments.MarkProcessed(ctx, tx, paymentID, model.PaymentStatusApproved, adminID, note, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrPaymentProcessed
		}
		if _, err := u.users.CreditCredits(ctx, tx, p.UserID, p.Credits); err != nil {
			return err
		}
		return u.txns.Save(ctx, tx, &model.Transaction{
			ID:          ulid.Make().String(),
			UserID:      p.UserID,
			Type:        model.TransactionTypeTopup,
			Amount:      p.Credits,
			ReferenceID: p.ID,
			Description: "top-up approved",
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatusApproved
	p.AdminID = &adminID
	p.AdminMessage = note
	p.ProcessedAt = &now
	p.UpdatedAt = now
	metrics.IncPayment(string(model.PaymentStatusApproved))
	metrics.AddPaymentRevenue("uzs", p.AmountUZS)
	metrics.AddCreditsCredited("topup", p.Credits)
	u.log.Info().Str("payment_id", p.ID).Int64("user_id", p.UserID).
		Int64("admin_id", adminID).Int64("credits", p.Credits).Msg("top-up approved")
	return p, nil
}

func (u *paymentUC) Reject(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	won, err := u.payments.MarkProcessed(ctx, repository.NoTX, paymentID, model.PaymentStatusRejected, adminID, note, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrPaymentProcessed
	}
	p.Status = model.PaymentStatusRejected
	p.AdminID = &adminID
	p.AdminMessage = note
	p.ProcessedAt = &now
	p.UpdatedAt = now
	metrics.IncPayment(string(model.PaymentStatusRejected))
	u.log.Info().Str("payment_id", p.ID).Int64("admin_id", adminID).Msg("top-up rejected")
	return p, nil
}

func (u *paymentUC) ListPending(ctx context.Context, limit int) ([]*model.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return u.payments.ListPending(ctx, repository.NoTX, limit)
}

func (u *paymentUC) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, paymentID)
}
