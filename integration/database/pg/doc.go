// Package pg provides the transaction-propagation helper core/queue's
// postgres Storage uses to participate in a caller's outbox-style
// transaction, instead of always issuing its own standalone statement.
//
// Connection pooling and schema migration are out of scope for this
// package — construct your own *pgxpool.Pool, apply the schema with
// whatever migration tool your process already carries, and pass the pool
// to postgres.NewStorage directly.
//
// # Transaction propagation
//
// Use WithTx to attach a pgx.Tx to a context and TxFromContext to retrieve
// it, so a domain write and an Enqueue call can commit or roll back
// together:
//
//	// In your business logic where you need atomic DB + enqueue (outbox-style):
//	func createOrder(ctx context.Context, pool *pgxpool.Pool, enq *queue.Enqueuer, params CreateOrderParams) error {
//		tx, err := pool.Begin(ctx)
//		if err != nil {
//			return err
//		}
//		defer tx.Rollback(ctx) // safe even after commit
//
//		ctx = pg.WithTx(ctx, tx)
//
//		// 1) Domain writes using tx
//		var orderID uuid.UUID
//		err = tx.QueryRow(ctx, "INSERT INTO orders (customer_id, total) VALUES ($1,$2) RETURNING id", params.CustomerID, params.Total).Scan(&orderID)
//		if err != nil {
//			return err
//		}
//
//		// 2) Enqueue task within the same transaction
//		type OrderCreated struct{ ID uuid.UUID `json:"id"` }
//		if err := enq.Enqueue(ctx, OrderCreated{ID: orderID}, queue.WithQueue("orders")); err != nil {
//			return err
//		}
//
//		return tx.Commit(ctx)
//	}
//
// core/queue/postgres.Storage checks TxFromContext(ctx) first and falls
// back to its pool on every method, so the Enqueue call above transparently
// runs inside tx without the storage layer knowing about orders at all.
// Because workers run in separate sessions, they will not see uncommitted
// rows; once the transaction commits, the enqueued task becomes visible.
package pg
