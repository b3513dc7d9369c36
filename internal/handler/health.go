package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ReadinessReporter reports whether the classifier artifacts are loaded.
type ReadinessReporter interface {
	Ready() error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db        HealthChecker
	cache     HealthChecker
	predictor ReadinessReporter
}

// NewHealthHandler creates a new HealthHandler.
// Pass a nil interface (not a typed nil pointer) for anything not configured.
func NewHealthHandler(db, cache HealthChecker, predictor ReadinessReporter) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		predictor: predictor,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint.
// It returns 200 if the server is running.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is a readiness probe endpoint.
// The database and Redis must answer for a 200. An unloaded predictor is reported
// but does not fail readiness: the rest of the site keeps working without it.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, 3)
	healthy := true

	if !ping(ctx, checks, "database", h.db) {
		healthy = false
	}
	if !ping(ctx, checks, "redis", h.cache) {
		healthy = false
	}

	switch {
	case h.predictor == nil:
		checks["predictor"] = "not configured"
	case h.predictor.Ready() != nil:
		checks["predictor"] = "unavailable: " + h.predictor.Ready().Error()
	default:
		checks["predictor"] = "ok"
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{Status: status, Checks: checks})
}

func ping(ctx context.Context, checks map[string]string, name string, c HealthChecker) bool {
	if c == nil {
		checks[name] = "not configured"
		return true
	}
	if err := c.Ping(ctx); err != nil {
		checks[name] = "error: " + err.Error()
		return false
	}
	checks[name] = "ok"
	return true
}
