// RequireAuth and RequirePermission gate the admin HTTP surface: directory
// mutation, tenant batch iteration, and shard listing endpoints.
// Grounded on the teacher's internal/middleware/auth.go Bearer-token
// parsing, paired with pkg/security.AuthManager for validation and
// pkg/security.AuditLogger for a record of who changed what.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sharding-system/pkg/security"

	"go.uber.org/zap"
)

type adminClaimsKey struct{}

// RequireAuth parses the Authorization: Bearer <token> header, validates it
// against auth, and installs the resulting claims on the request context.
func RequireAuth(auth *security.AuthManager, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.ValidateToken(token)
			if err != nil {
				logger.Warn("admin_auth: token validation failed", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose admin claims are not authorized
// for action on resource, e.g. RequirePermission(auth, "directory", "write")
// in front of a tenant-provisioning route. It must run after RequireAuth.
func RequirePermission(auth *security.AuthManager, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(adminClaimsKey{}).(*security.Claims)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authentication")
				return
			}
			if !auth.Authorize(claims, resource, action) {
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the admin claims installed by RequireAuth, if
// any.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(adminClaimsKey{}).(*security.Claims)
	return claims, ok
}
