package api

import (
	"github.com/sharding-system/internal/middleware"
	"github.com/sharding-system/pkg/security"

	"github.com/gorilla/mux"
)

// SetupPublicRoutes registers routes reachable with no admin bearer token:
// the token-issuance endpoint and the health snapshot (spec.md §6's
// server.excluded-paths already excludes /health from tenant resolution).
func SetupPublicRoutes(router *mux.Router, auth *AuthHandler, health *HealthHandler) {
	router.HandleFunc("/api/v1/auth/token", auth.IssueToken).Methods("POST", "OPTIONS")
	router.HandleFunc("/health", health.Snapshot).Methods("GET", "OPTIONS")
}

// SetupDirectoryRoutes registers the directory/shard-introspection routes
// on a router already wrapped with RequireAuth, gating reads behind
// directory:read and mutations behind directory:write.
func SetupDirectoryRoutes(router *mux.Router, authManager *security.AuthManager, handler *DirectoryHandler) {
	read := middleware.RequirePermission(authManager, "directory", "read")
	write := middleware.RequirePermission(authManager, "directory", "write")

	router.Handle("/api/v1/directory/mappings/{tenantId}",
		read(httpFunc(handler.FindShardByTenantID))).Methods("GET", "OPTIONS")
	router.Handle("/api/v1/directory/mappings",
		write(httpFunc(handler.CreateMapping))).Methods("POST", "OPTIONS")
	router.Handle("/api/v1/directory/mappings/{tenantId}",
		write(httpFunc(handler.UpdateMapping))).Methods("PUT", "OPTIONS")
	router.Handle("/api/v1/shards",
		read(httpFunc(handler.ListShards))).Methods("GET", "OPTIONS")
}

// SetupIteratorRoutes registers the batch-job submission/status routes,
// gated behind directory:write since a consistency sweep touches every
// tenant's directory row.
func SetupIteratorRoutes(router *mux.Router, authManager *security.AuthManager, handler *IteratorHandler) {
	write := middleware.RequirePermission(authManager, "directory", "write")

	router.Handle("/api/v1/iterate/verify",
		write(httpFunc(handler.SubmitConsistencySweep))).Methods("POST", "OPTIONS")
	router.Handle("/api/v1/iterate/{jobId}",
		write(httpFunc(handler.JobStatusHandler))).Methods("GET", "OPTIONS")
}
