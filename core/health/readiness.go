package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/conveyor/core/logger"
)

// Readiness verifies all service dependencies are functioning by calling fn
// in order. Responds "READY" if every check passes, 503 Service Unavailable
// on the first failure.
//
// Example:
//
//	mux.HandleFunc("GET /health/ready", health.Readiness(log,
//		storage.Healthcheck,
//		worker.Healthcheck,
//	))
func Readiness(log *slog.Logger, fn ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range fn {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
