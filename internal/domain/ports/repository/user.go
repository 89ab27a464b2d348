package repository

import (
	"context"

	"telegram-media-generation/internal/domain/model"
)

// UserRepository persists users and owns the credit ledger primitives.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)

	// LockUser takes a transaction-scoped advisory lock on the user so that
	// concurrent admission checks for the same user serialize. Released
	// automatically at commit/rollback. Only meaningful inside a transaction.
	LockUser(ctx context.Context, tx Tx, userID int64) error

	// DebitCredits atomically decrements the balance by amount, but only
	// where credits >= amount, and returns the post-decrement balance.
	// If no row matched the condition it returns domain.ErrInsufficientCredits.
	// Callers never read the balance first and decide separately; this single
	// conditional update is what makes concurrent debits race-free.
	DebitCredits(ctx context.Context, tx Tx, userID, amount int64) (int64, error)

	// CreditCredits unconditionally increments the balance and returns the
	// new value. Used for refunds and approved top-ups only; exactly-once
	// semantics are the caller's responsibility (refunded flag, payment
	// status transition).
	CreditCredits(ctx context.Context, tx Tx, userID, amount int64) (int64, error)
}
