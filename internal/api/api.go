// Package api implements the admin HTTP surface: JSON handlers fronting
// ShardLookupService directory mutation, shard/health introspection, and
// TenantIterator batch-job submission (SPEC_FULL.md §4). Grounded on the
// teacher's internal/api/*.go handler shape (a struct holding its
// dependencies, one method per route, a writeJSONError helper, and a
// package-level SetupXRoutes(router, handler) registration function),
// narrowed from the teacher's many MAANG-style resource handlers down to
// the handlers this spec's components actually support.
package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// httpFunc adapts a plain handler method to http.Handler so it can be
// passed through a middleware.RequirePermission-style wrapper.
func httpFunc(fn http.HandlerFunc) http.Handler {
	return fn
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
