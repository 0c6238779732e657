package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestHealthHandler_Liveness(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/health", "")
	if err := NewHealthHandler().Liveness(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("err=%v code=%d", err, rec.Code)
	}
}

func TestHealthDependenciesHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthDependenciesHandler(map[string]Check{"postgres": ok, "redis": ok})
		c, rec := newContext(http.MethodGet, "/health/ready", "")
		if err := h.Readiness(c); err != nil || rec.Code != http.StatusOK {
			t.Fatalf("err=%v code=%d", err, rec.Code)
		}
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := NewHealthDependenciesHandler(map[string]Check{"postgres": ok, "redis": down, "mongo": ok})
		c, rec := newContext(http.MethodGet, "/health/ready", "")
		if err := h.Readiness(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}

		var resp readinessResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if resp.Status != "degraded" || resp.Dependencies["redis"].Status != "unhealthy" || resp.Dependencies["postgres"].Status != "ok" {
			t.Fatalf("unexpected body %+v", resp)
		}
	})
}
