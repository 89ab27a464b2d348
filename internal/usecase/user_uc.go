// File: internal/usecase/user_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
	"telegram-media-generation/internal/infra/logging"
	"telegram-media-generation/internal/infra/metrics"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user-related operations used by the API and admin flows.
type UserUseCase interface {
	// RegisterOrFetch returns the user, creating them with the starting
	// credit grant on first contact.
	RegisterOrFetch(ctx context.Context, tgID int64, username, firstName, lastName, lang string) (*model.User, error)
	Get(ctx context.Context, tgID int64) (*model.User, error)
	Balance(ctx context.Context, tgID int64) (int64, error)
	Transactions(ctx context.Context, tgID int64, limit, offset int) ([]*model.Transaction, error)
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users repository.UserRepository
	txns  repository.TransactionRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, txns repository.TransactionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		txns:  txns,
		tm:    tm,
		log:   logger,
	}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username, firstName, lastName, lang string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var (
		user    *model.User
		created bool
	)
	// Find and create must be one atomic step so two first-contact requests
	// cannot both hand out the starting bonus.
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, tgID)
		if err == nil && usr != nil {
			if username != "" && usr.Username != username {
				usr.Username = username
			}
			usr.Touch()
			if err = u.users.Save(ctx, tx, usr); err != nil {
				return err
			}
			user = usr
			return nil
		}
		if err != nil && err != domain.ErrUserNotFound {
			return err
		}

		nu, err := model.NewUser(tgID, username, firstName, lastName, lang)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		if err := u.txns.Save(ctx, tx, &model.Transaction{
			ID:          ulid.Make().String(),
			UserID:      tgID,
			Type:        model.TransactionTypeBonus,
			Amount:      model.StartingCredits,
			Description: "welcome bonus",
			CreatedAt:   time.Now(),
		}); err != nil {
			return err
		}
		user = nu
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.IncUsersRegistered()
		metrics.AddCreditsCredited("bonus", model.StartingCredits)
		u.log.Info().Int64("user_id", tgID).Msg("new user registered")
	}
	return user, nil
}

func (u *userUC) Get(ctx context.Context, tgID int64) (*model.User, error) {
	return u.users.FindByID(ctx, repository.NoTX, tgID)
}

func (u *userUC) Balance(ctx context.Context, tgID int64) (int64, error) {
	usr, err := u.users.FindByID(ctx, repository.NoTX, tgID)
	if err != nil {
		return 0, err
	}
	return usr.Credits, nil
}

func (u *userUC) Transactions(ctx context.Context, tgID int64, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return u.txns.ListByUser(ctx, repository.NoTX, tgID, limit, offset)
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	return u.users.CountUsers(ctx, repository.NoTX)
}
