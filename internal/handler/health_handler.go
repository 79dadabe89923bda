package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fraudsim/internal/util"

	"go.uber.org/zap"
)

// HealthChecker probes one backing service.
type HealthChecker func(ctx context.Context) error

// HealthHandler serves liveness and deep health probes. The deep probe
// pings every registered backend and reports per-backend status.
type HealthHandler struct {
	checks map[string]HealthChecker
	logger *zap.Logger
}

func NewHealthHandler(checks map[string]HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// Liveness reports that the process is up without touching any backend.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"fraudsim"}`))
}

// Deep pings every backend with a short timeout. Any failure turns the
// overall status to 503 while still listing the healthy backends.
func (h *HealthHandler) Deep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("backend health check failed",
				util.String("backend", name),
				util.ErrorField(err),
			)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	payload := struct {
		Status   string            `json:"status"`
		Service  string            `json:"service"`
		Backends map[string]string `json:"backends"`
	}{
		Status:   overall,
		Service:  "fraudsim",
		Backends: results,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}
