package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/internal/middleware"
	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/security"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DirectoryHandler fronts ShardLookupService's read/write path and the
// ShardRegistry's topology listing over HTTP. Grounded on the teacher's
// internal/api/manager_handler.go (struct-of-dependencies, one method per
// route, audit events on every mutation).
type DirectoryHandler struct {
	lookup   *lookupservice.Service
	registry *registry.Registry
	audit    *security.AuditLogger
	logger   *zap.Logger
}

// NewDirectoryHandler constructs a DirectoryHandler. audit may be nil to
// disable audit logging (e.g. in tests).
func NewDirectoryHandler(lookup *lookupservice.Service, reg *registry.Registry, audit *security.AuditLogger, logger *zap.Logger) *DirectoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryHandler{lookup: lookup, registry: reg, audit: audit, logger: logger}
}

func (h *DirectoryHandler) auditEvent(r *http.Request, action, resourceID, shardID string, success bool, errMsg string) {
	if h.audit == nil {
		return
	}
	user := "unknown"
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		user = claims.Username
	}
	h.audit.Log(security.AuditEvent{
		User:       user,
		Action:     action,
		Resource:   "directory",
		ResourceID: resourceID,
		ShardID:    shardID,
		Success:    success,
		Error:      errMsg,
		IP:         r.RemoteAddr,
	})
}

func writeRoutingError(w http.ResponseWriter, err error) {
	var re *dberrors.Error
	if errors.As(err, &re) {
		writeJSONError(w, re.HTTPStatus(), string(re.Kind), re.Message)
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

// mappingResponse is the JSON shape of a tenant-to-shard mapping.

type mappingResponse struct {
	TenantID  int64  `json:"tenant_id"`
	ShardID   string `json:"shard_id"`
	Region    string `json:"region"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// FindShardByTenantID handles GET /api/v1/directory/mappings/{tenantId}.
func (h *DirectoryHandler) FindShardByTenantID(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(mux.Vars(r)["tenantId"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tenantId must be an integer")
		return
	}

	mapping, found, err := h.lookup.FindShardByTenantID(r.Context(), tenantID)
	if err != nil {
		writeRoutingError(w, err)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown tenant")
		return
	}

	writeJSON(w, http.StatusOK, mappingResponse{
		TenantID: mapping.TenantID, ShardID: mapping.ShardID, Region: mapping.Region,
		Status: string(mapping.Status), CreatedAt: mapping.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type createMappingRequest struct {
	TenantID int64  `json:"tenant_id"`
	ShardID  string `json:"shard_id"` // optional; defaults to the registry's latest shard
	Region   string `json:"region"`
}

// CreateMapping handles POST /api/v1/directory/mappings.
func (h *DirectoryHandler) CreateMapping(w http.ResponseWriter, r *http.Request) {
	var req createMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.TenantID <= 0 {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tenant_id is required")
		return
	}

	mapping, err := h.lookup.CreateMapping(r.Context(), req.TenantID, req.ShardID, req.Region)
	if err != nil {
		h.auditEvent(r, "createMapping", strconv.FormatInt(req.TenantID, 10), req.ShardID, false, err.Error())
		writeRoutingError(w, err)
		return
	}

	h.auditEvent(r, "createMapping", strconv.FormatInt(req.TenantID, 10), mapping.ShardID, true, "")
	writeJSON(w, http.StatusCreated, mappingResponse{
		TenantID: mapping.TenantID, ShardID: mapping.ShardID, Region: mapping.Region,
		Status: string(mapping.Status), CreatedAt: mapping.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type updateMappingRequest struct {
	ShardID string `json:"shard_id"`
	Region  string `json:"region"`
	Status  string `json:"status"`
}

// UpdateMapping handles PUT /api/v1/directory/mappings/{tenantId}.
func (h *DirectoryHandler) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(mux.Vars(r)["tenantId"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tenantId must be an integer")
		return
	}

	var req updateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	ok, err := h.lookup.UpdateMapping(r.Context(), tenantID, directory.UpdateParams{
		ShardID: req.ShardID, Region: req.Region, Status: parseShardStatus(req.Status),
	})
	if err != nil {
		h.auditEvent(r, "updateMapping", strconv.FormatInt(tenantID, 10), req.ShardID, false, err.Error())
		writeRoutingError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown tenant")
		return
	}

	h.auditEvent(r, "updateMapping", strconv.FormatInt(tenantID, 10), req.ShardID, true, "")
	w.WriteHeader(http.StatusNoContent)
}

type shardSummary struct {
	ID       string   `json:"id"`
	Region   string   `json:"region"`
	Latest   bool     `json:"latest"`
	Status   string   `json:"status"`
	Master   string   `json:"master"`
	Replicas []string `json:"replicas"`
}

// ListShards handles GET /api/v1/shards.
func (h *DirectoryHandler) ListShards(w http.ResponseWriter, r *http.Request) {
	shards := h.registry.ListShards()
	out := make([]shardSummary, 0, len(shards))
	for _, s := range shards {
		replicas := make([]string, 0, len(s.Replicas))
		for _, rep := range s.Replicas {
			replicas = append(replicas, rep.ID)
		}
		out = append(out, shardSummary{
			ID: s.ID, Region: s.Region, Latest: s.Latest, Status: string(s.Status),
			Master: s.Master.ID, Replicas: replicas,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shards": out})
}

func parseShardStatus(s string) models.ShardStatus {
	switch models.ShardStatus(s) {
	case models.ShardActive, models.ShardReadOnly, models.ShardDisabled:
		return models.ShardStatus(s)
	default:
		return models.ShardActive
	}
}
