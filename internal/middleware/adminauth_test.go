package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharding-system/pkg/security"
)

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	auth := security.NewAuthManager("test-secret", time.Hour)
	handler := RequireAuth(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/directory", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthInstallsClaims(t *testing.T) {
	auth := security.NewAuthManager("test-secret", time.Hour)
	token, err := auth.GenerateToken("alice", []string{"operator"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var gotUsername string
	handler := RequireAuth(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		gotUsername = claims.Username
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/directory", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUsername != "alice" {
		t.Fatalf("expected alice, got %q", gotUsername)
	}
}

func TestRequirePermissionAllowsAuthorizedRole(t *testing.T) {
	auth := security.NewAuthManager("test-secret", time.Hour)
	token, _ := auth.GenerateToken("op1", []string{"operator"})

	called := false
	handler := RequireAuth(auth, nil)(RequirePermission(auth, "directory", "write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/admin/directory", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected operator to be authorized, called=%v code=%d", called, rec.Code)
	}
}

func TestRequirePermissionRejectsUnauthorizedRole(t *testing.T) {
	auth := security.NewAuthManager("test-secret", time.Hour)
	token, _ := auth.GenerateToken("viewer1", []string{"viewer"})

	handler := RequireAuth(auth, nil)(RequirePermission(auth, "directory", "write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("viewer should not be authorized to write")
	})))

	req := httptest.NewRequest(http.MethodPost, "/admin/directory", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	auth := security.NewAuthManager("test-secret", time.Hour)
	handler := RequireAuth(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/directory", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
