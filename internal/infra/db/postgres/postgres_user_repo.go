package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, username, first_name, last_name, language_code, credits,
  total_spent_credits, total_generations, is_banned, is_admin,
  registered_at, last_active_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  username=$2, first_name=$3, last_name=$4, language_code=$5,
  is_banned=$9, is_admin=$10, last_active_at=$12;`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Username, u.FirstName, u.LastName, u.LanguageCode, u.Credits,
		u.TotalSpentCredits, u.TotalGenerations, u.IsBanned, u.IsAdmin,
		u.RegisteredAt, u.LastActiveAt)
	return err
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	const q = `
SELECT id, username, first_name, last_name, language_code, credits,
       total_spent_credits, total_generations, is_banned, is_admin,
       registered_at, last_active_at
  FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode, &u.Credits,
		&u.TotalSpentCredits, &u.TotalGenerations, &u.IsBanned, &u.IsAdmin,
		&u.RegisteredAt, &u.LastActiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &u, nil
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

// LockUser serializes same-user admission via a transaction-scoped advisory
// lock. User IDs are Telegram IDs, already int64, so they key the lock directly.
func (r *PostgresUserRepo) LockUser(ctx context.Context, tx repository.Tx, userID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1);`, userID)
	return err
}

// DebitCredits is the single place where the balance goes down. The WHERE
// clause carries the sufficiency check, so two concurrent debits can never
// both succeed past the available balance; the loser sees no matched row.
func (r *PostgresUserRepo) DebitCredits(ctx context.Context, tx repository.Tx, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
UPDATE users
   SET credits = credits - $2,
       total_spent_credits = total_spent_credits + $2,
       total_generations = total_generations + 1,
       last_active_at = NOW()
 WHERE id = $1 AND credits >= $2
RETURNING credits;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return balance, nil
}

func (r *PostgresUserRepo) CreditCredits(ctx context.Context, tx repository.Tx, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
UPDATE users
   SET credits = credits + $2
 WHERE id = $1
RETURNING credits;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return balance, nil
}
