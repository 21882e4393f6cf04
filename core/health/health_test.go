package health_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/conveyor/core/health"
)

func TestLiveness(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.Liveness()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())
}

func TestNoContent(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.NoContent()(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()

		ok := func(context.Context) error { return nil }

		rec := httptest.NewRecorder()
		health.Readiness(log, ok, ok)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("first failure returns 503", func(t *testing.T) {
		t.Parallel()

		calls := 0
		ok := func(context.Context) error { calls++; return nil }
		bad := func(context.Context) error { return errors.New("db unreachable") }

		rec := httptest.NewRecorder()
		health.Readiness(log, ok, bad, ok)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, 1, calls, "checks after the first failure are skipped")
	})

	t.Run("no checks is trivially ready", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		health.Readiness(log)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
