// AuthManager issues and validates the bearer tokens that gate the admin
// HTTP surface (directory mutation, tenant iteration, shard listing).
// This is unrelated to the per-request TenantContext installed by
// internal/middleware.ShardSelector: that filter identifies which tenant a
// data-plane request belongs to, while AuthManager answers who is allowed
// to operate the router itself.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the operator identity and role set embedded in an admin
// bearer token.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthManager validates admin bearer tokens and authorizes the resulting
// claims against an RBAC policy.
type AuthManager struct {
	jwtSecret []byte
	rbac      *RBAC
	ttl       time.Duration
}

// NewAuthManager constructs an AuthManager signing and verifying tokens with
// jwtSecret. A zero ttl defaults to 24 hours.
func NewAuthManager(jwtSecret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
		rbac:      NewRBAC(),
		ttl:       ttl,
	}
}

// GenerateToken issues a signed token for username holding roles.
func (a *AuthManager) GenerateToken(username string, roles []string) (string, error) {
	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken parses and verifies tokenString, rejecting anything not
// signed with HMAC under our secret.
func (a *AuthManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authorize reports whether claims' roles permit action on resource, e.g.
// ("directory", "write") for a tenant provisioning call.
func (a *AuthManager) Authorize(claims *Claims, resource, action string) bool {
	return a.rbac.IsAllowed(claims.Roles, resource, action)
}

// RBAC exposes the underlying policy so callers can register additional
// roles beyond the defaults (admin, operator, viewer).
func (a *AuthManager) RBAC() *RBAC {
	return a.rbac
}
