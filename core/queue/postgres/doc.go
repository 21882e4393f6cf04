// Package postgres is the production core/queue.Storage implementation,
// backing a Worker, Scheduler and Enqueuer with a jobs table in
// PostgreSQL instead of queue.MemoryStorage.
//
// # Schema
//
// Storage expects a jobs table and a jobs_dlq table shaped like:
//
//	CREATE TABLE jobs (
//		id            uuid PRIMARY KEY,
//		queue         text NOT NULL,
//		task_type     text NOT NULL,
//		task_name     text NOT NULL,
//		payload       jsonb,
//		status        text NOT NULL,
//		priority      smallint NOT NULL,
//		flags         text[] NOT NULL DEFAULT '{}',
//		attempts      smallint NOT NULL DEFAULT 0,
//		max_attempts  smallint NOT NULL,
//		run_at        timestamptz NOT NULL,
//		locked_at     timestamptz,
//		locked_by     text,
//		processed_at  timestamptz,
//		error         text,
//		created_at    timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE INDEX jobs_claim_idx ON jobs (priority DESC, run_at ASC)
//		WHERE status = 'pending';
//
//	CREATE TABLE jobs_dlq (
//		id           uuid PRIMARY KEY,
//		task_id      uuid NOT NULL,
//		queue        text NOT NULL,
//		task_type    text NOT NULL,
//		task_name    text NOT NULL,
//		payload      jsonb,
//		priority     smallint NOT NULL,
//		error        text NOT NULL,
//		attempts     smallint NOT NULL,
//		failed_at    timestamptz NOT NULL,
//		created_at   timestamptz NOT NULL
//	);
//
// These statements are a reference shape, not a migration this package
// applies; manage them with whatever migration tool the hosting process
// uses.
//
// # Usage
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	storage := postgres.NewStorage(pool, postgres.WithLockDuration(10*time.Minute))
//
//	worker, _ := queue.NewWorker(storage, queue.WithTxRunner(storage.RunInTx))
//	worker.RegisterHandler(myHandler)
//
//	listener := postgres.NewNotifyListener(pool, worker)
//	go listener.Run(ctx)()
//
// NotifyListener is optional: Storage.CreateTask always issues a
// pg_notify on the "jobs_insert" channel, but a worker with no listener
// attached simply never observes it and keeps relying on its own
// pollInterval. Attach one per worker process that wants low-latency
// wakeup on newly enqueued jobs.
//
// # Transactions
//
// Every Storage method checks pg.TxFromContext(ctx) first and falls back
// to the pool, so outbox-style enqueues can participate in a caller's
// transaction:
//
//	tx, _ := pool.Begin(ctx)
//	ctx = pg.WithTx(ctx, tx)
//	// ... domain writes using tx ...
//	enqueuer.Enqueue(ctx, payload) // uses the same tx via storage.CreateTask
//	tx.Commit(ctx)
//
// RunInTx packages the same pattern as a queue.TxRunner, which is how a
// job handler gets it: a Worker constructed with
// queue.WithTxRunner(storage.RunInTx) hands every handler a
// JobHelpers.WithTx that opens the transaction, runs the handler's
// callback inside it, and commits or rolls back on its error.
package postgres
