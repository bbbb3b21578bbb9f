// ShardSelector and TenantValidator implement RequestFilters (spec.md
// §4.11): the ordered pair of HTTP middleware that parses the tenant
// identifier from the ingress, resolves its shard, installs the
// TenantContext, and guarantees it is cleared on every exit path. Grounded
// on the teacher's internal/middleware/auth.go (public-path exclusion
// list, Bearer-token parsing), extended with account-id header parsing,
// a JWT claim fallback, and the shard-selection/validation split the
// teacher's version never had.
package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sharding-system/pkg/logging"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/tenantctx"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const accountIDHeader = "account-id"

// ShardSelectorConfig configures the ShardSelector filter.
type ShardSelectorConfig struct {
	Lookup           *lookupservice.Service
	ExcludedPrefixes []string // e.g. /signup, /health, /docs, /metrics
	JWTSecret        []byte   // optional; enables the account_id claim fallback
	Logger           *logging.Logger
}

// ShardSelector parses the account-id header (or, failing that, an
// account_id JWT claim), resolves the tenant's shard via ShardLookupService,
// and installs a fully-resolved TenantContext. A request with no tenant
// identifier at all proceeds in global-only mode.
func ShardSelector(cfg ShardSelectorConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcludedPath(r.URL.Path, cfg.ExcludedPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			tenantID, present, malformed := extractTenantID(r, cfg.JWTSecret)
			if malformed {
				writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "account-id header is not a valid tenant identifier")
				return
			}
			if !present {
				// Global-only mode: no tenant in context, proceed as-is.
				next.ServeHTTP(w, r)
				return
			}

			mapping, found, err := cfg.Lookup.FindShardByTenantID(r.Context(), tenantID)
			if err != nil {
				logger.Error("shard_selector: lookup failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to resolve tenant shard")
				return
			}
			if !found {
				writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown tenant")
				return
			}
			if mapping.Status == models.ShardDisabled {
				writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "tenant is disabled")
				return
			}

			info := tenantctx.ForTenant(tenantID, mapping.ShardID, isReadOnlyMethod(r.Method))
			ctx := tenantctx.WithInfo(r.Context(), info)
			logger.WithTenant(ctx).Debug("shard_selector: tenant context installed", zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(ctx))

			// TenantContext never outlives the request: Go's per-request
			// context tree means there is nothing further to tear down
			// here, but clearing explicitly documents the guarantee.
			tenantctx.Clear(ctx)
		})
	}
}

// TenantValidator re-checks that the account-id header (if present) still
// matches the TenantContext installed by ShardSelector, as defense in
// depth against a context mismatch introduced by an intermediate handler.
func TenantValidator(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(accountIDHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			headerID, err := strconv.ParseInt(header, 10, 64)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			info := tenantctx.FromContext(r.Context())
			if info.HasTenant && info.TenantID != headerID {
				logger.Error("tenant_validator: context/header mismatch",
					zap.Int64("header_tenant_id", headerID), zap.Int64("context_tenant_id", info.TenantID))
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "tenant context mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isExcludedPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isReadOnlyMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// extractTenantID reads the account-id header, falling back to an
// account_id claim in a Bearer JWT when the header is absent and a secret
// is configured.
func extractTenantID(r *http.Request, jwtSecret []byte) (id int64, present bool, malformed bool) {
	if header := r.Header.Get(accountIDHeader); header != "" {
		parsed, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			return 0, false, true
		}
		return parsed, true, false
	}

	if jwtSecret == nil {
		return 0, false, false
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return 0, false, false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, false, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, false
	}
	raw, ok := claims["account_id"]
	if !ok {
		return 0, false, false
	}

	switch v := raw.(type) {
	case float64:
		return int64(v), true, false
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, true
		}
		return parsed, true, false
	default:
		return 0, false, true
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
