package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// txContextKey is an unexported key type to avoid context key collisions.
type txContextKey struct{}

// WithTx returns a new context carrying tx, making every queue storage
// call downstream of it (CreateTask from an Enqueuer, a handler's own
// writes, the job's eventual CompleteJob/FailJob report) run inside that
// transaction instead of borrowing from the pool. If ctx is nil,
// context.Background() is used; a nil tx returns ctx unchanged.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext extracts a pgx.Tx previously stashed by WithTx. Storage
// implementations check it first and fall back to their pool when the
// second return value is false, which is what lets an outbox-style
// enqueue join its caller's transaction transparently.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}
