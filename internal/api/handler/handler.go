// Package handler provides HTTP handlers for all API endpoints.
// Handlers call the user directory directly; there is no service layer.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/morningcast/internal/api/respond"
	"github.com/albapepper/morningcast/internal/users"
)

// DBChecker verifies database connectivity. *db.Pool satisfies it.
type DBChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunStatus reports the morning scheduler state. *notifications.Scheduler
// satisfies it.
type RunStatus interface {
	Next() time.Time
	LastSummary() (string, bool)
}

// CacheStats reports geocode cache statistics. *cache.Memory satisfies it.
type CacheStats interface {
	Stats() map[string]interface{}
}

// Deps are the handler dependencies. DB, Runs and Cache are optional.
type Deps struct {
	Users   users.Store
	DB      DBChecker
	Runs    RunStatus
	Cache   CacheStats
	Version string
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	users   users.Store
	db      DBChecker
	runs    RunStatus
	cache   CacheStats
	version string
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	return &Handler{users: d.Users, db: d.DB, runs: d.Runs, cache: d.Cache, version: d.Version}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Morningcast API",
		"version": h.version,
		"status":  "running",
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "not_configured",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.HealthCheck(ctx); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckScheduler reports the next firing and the last run summary.
func (h *Handler) HealthCheckScheduler(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.runs == nil {
		body["scheduler"] = "disabled"
		respond.WriteJSONObject(w, http.StatusOK, body)
		return
	}
	if next := h.runs.Next(); !next.IsZero() {
		body["next_run"] = next.UTC().Format(time.RFC3339)
	}
	if summary, ok := h.runs.LastSummary(); ok {
		body["last_run"] = summary
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// HealthCheckCache returns geocode cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"cache":  "external",
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"cache":  h.cache.Stats(),
	})
}
