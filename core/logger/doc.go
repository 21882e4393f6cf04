// Package logger provides structured attribute helpers for Go's standard
// log/slog package.
//
// Every helper follows the empty-Attr-for-nil pattern so call sites never
// need a nil check:
//
//	log.ErrorContext(ctx, "job failed",
//		logger.Error(err),
//		logger.ID("job_id", job.ID),
//		logger.Duration(time.Since(start)),
//	)
//
// Group nests related attributes under one key:
//
//	log.InfoContext(ctx, "worker created",
//		logger.Group("worker", logger.ID("worker_id", workerID)),
//	)
package logger
