// Package health provides plain net/http handlers for service health
// monitoring: liveness (process is running), readiness (dependencies are
// reachable), and a minimal no-content probe for high-frequency checks.
//
// Dependency checks follow the same shape every Healthcheck method in this
// module already exposes:
//
//	func(context.Context) error
//
// Usage:
//
//	mux.HandleFunc("GET /health/live", health.Liveness())
//	mux.HandleFunc("GET /health/ready", health.Readiness(logger,
//		storage.Healthcheck,
//		scheduler.Healthcheck,
//	))
//	mux.HandleFunc("GET /ping", health.NoContent())
package health
