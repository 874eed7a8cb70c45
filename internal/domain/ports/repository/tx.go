package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories accept nil for the non-transactional
// path.
type Tx interface{}

// NoTX is passed where no transaction is wanted.
var NoTX Tx

// TransactionManager runs fn inside a database transaction, handing the tx
// handle through so repositories can share it. Every write that must be
// atomic with an external side effect goes through here — there is no
// implicit autocommit path for those steps.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
