package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharding-system/pkg/config"
	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/health"
	"github.com/sharding-system/pkg/iterator"
	"github.com/sharding-system/pkg/lookupcache"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/security"

	"go.uber.org/zap"
)

// stubStore satisfies lookupservice.Store with an always-empty directory,
// enough to exercise the admin surface's routing without a real database.
type stubStore struct{}

func (stubStore) Find(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, error) {
	return models.TenantShardMapping{}, false, nil
}

func (stubStore) Create(ctx context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error) {
	return models.TenantShardMapping{TenantID: tenantID, ShardID: shardID, Region: region}, nil
}

func (stubStore) Update(ctx context.Context, tenantID int64, params directory.UpdateParams) (bool, error) {
	return true, nil
}

func (stubStore) IterateAll(ctx context.Context, cursor int64, limit int) (directory.IteratePage, error) {
	return directory.IteratePage{}, nil
}

// stubPools satisfies health.Pools with every endpoint reporting healthy,
// since these tests exercise the HTTP surface, not probing itself.
type stubPools struct{}

func (stubPools) IsHealthy(endpointID string) bool                  { return true }
func (stubPools) SetHealthy(endpointID string, healthy bool)        {}
func (stubPools) Ping(ctx context.Context, endpointID string, timeout time.Duration) error {
	return nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()

	reg, err := registry.New([]models.ShardDescriptor{
		{ID: "shard1", Master: models.Endpoint{ID: "shard1-master"}, Latest: true},
	}, models.ReplicaRoundRobin)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	audit, err := security.NewAuditLogger(t.TempDir() + "/audit.log")
	if err != nil {
		t.Fatalf("failed to open audit logger: %v", err)
	}
	t.Cleanup(func() { audit.Close() })

	hash, err := security.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  30 * time.Second,
			JWTSecret:    "test-secret",
			Operators: []config.OperatorConfig{
				{Username: "admin", PasswordHash: hash, Roles: []string{"admin"}},
			},
		},
	}

	cache := lookupcache.NewLocal(lookupcache.LocalConfig{})
	lookup := lookupservice.New(stubStore{}, cache, reg, nil)

	return Deps{
		Config:      cfg,
		AuthManager: security.NewAuthManager(cfg.Server.JWTSecret, time.Hour),
		Audit:       audit,
		Lookup:      lookup,
		Registry:    reg,
		Iterator:    iterator.New(nil, zap.NewNop()),
		Health:      health.NewController(reg, stubPools{}, zap.NewNop(), health.Config{}),
		Logger:      zap.NewNop(),
	}
}

func TestServer_HealthIsPublic(t *testing.T) {
	srv := New(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DirectoryRequiresAuth(t *testing.T) {
	srv := New(testDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/directory/mappings/1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no bearer token, got %d", rec.Code)
	}
}

func TestServer_TokenIssuanceThenAuthorizedRequest(t *testing.T) {
	srv := New(testDeps(t))

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "correct-horse"})
	tokenReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	tokenReq.Header.Set("Content-Type", "application/json")
	tokenRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(tokenRec, tokenReq)

	if tokenRec.Code != http.StatusOK {
		t.Fatalf("expected 200 issuing token, got %d: %s", tokenRec.Code, tokenRec.Body.String())
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(tokenRec.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if tokenResp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shards", nil)
	req.Header.Set("Authorization", "Bearer "+tokenResp.Token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing shards with a valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}
