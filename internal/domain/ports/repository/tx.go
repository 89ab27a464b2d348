package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying transaction handle via `tx`.
//
// Keeps use-case interfaces clean (no driver types leaking out) while letting
// repository methods that accept `tx Tx` run their conditional updates on the
// tx-bound connection. Repositories MUST gracefully accept a nil tx and fall
// back to the pool (non-transactional path).
//
// The admission flow relies on this: idempotency reservation, limit counts,
// the conditional debit and the generation insert all share one transaction,
// so an aborted debit rolls the reservation back with it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
