package api

import (
	"net/http"

	"github.com/sharding-system/pkg/health"

	"go.uber.org/zap"
)

// HealthHandler exposes pkg/health.Controller's most recent probe snapshot
// over HTTP, so an operator can see replica/master reachability without
// scraping Prometheus. Grounded on the teacher's internal/api pattern of a
// thin struct wrapping one dependency.
type HealthHandler struct {
	controller *health.Controller
	logger     *zap.Logger
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(controller *health.Controller, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{controller: controller, logger: logger}
}

// Snapshot handles GET /health, returning the last probe result per shard.
// This path is excluded from ShardSelector/TenantValidator (spec.md §6's
// server.excluded-paths default), so it needs no tenant context.
func (h *HealthHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"shards": h.controller.Snapshot()})
}
