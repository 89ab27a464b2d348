package model

import "time"

type TransactionType string

const (
	TransactionTypeTopup      TransactionType = "topup"      // user bought credits
	TransactionTypeGeneration TransactionType = "generation" // credits spent on a generation
	TransactionTypeRefund     TransactionType = "refund"     // credits returned
	TransactionTypeBonus      TransactionType = "bonus"      // promotional credits
)

// Transaction is an append-only audit record of a balance mutation. It is
// written in the same database transaction as the mutation itself, so the
// trail can never disagree with the ledger.
type Transaction struct {
	ID          string // ULID
	UserID      int64
	Type        TransactionType
	Amount      int64 // positive for income, negative for expense
	ReferenceID string // generation or payment ID this entry points at
	Description string
	CreatedAt   time.Time
}
