package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks the non-transactional path; repositories run on the pool.
var NoTX Tx

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying handle via `tx`.
//
// Repositories accept a nil tx (non-transactional path) and detect the
// concrete handle (pgx.Tx for Postgres) implementation-side. The worker loop
// uses this to make "append commit + project snapshot + mark job done" a
// single atomic write.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
