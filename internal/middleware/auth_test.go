package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/lookupcache"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/tenantctx"
)

type fakeDirectoryStore struct {
	rows map[int64]models.TenantShardMapping
}

func (f *fakeDirectoryStore) Find(_ context.Context, tenantID int64) (models.TenantShardMapping, bool, error) {
	m, ok := f.rows[tenantID]
	return m, ok, nil
}
func (f *fakeDirectoryStore) Create(_ context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error) {
	m := models.TenantShardMapping{TenantID: tenantID, ShardID: shardID, Region: region, Status: models.ShardActive}
	f.rows[tenantID] = m
	return m, nil
}
func (f *fakeDirectoryStore) Update(_ context.Context, tenantID int64, params directory.UpdateParams) (bool, error) {
	return false, nil
}
func (f *fakeDirectoryStore) IterateAll(_ context.Context, cursor int64, limit int) (directory.IteratePage, error) {
	return directory.IteratePage{}, nil
}

func testLookup(t *testing.T) *lookupservice.Service {
	t.Helper()
	store := &fakeDirectoryStore{rows: map[int64]models.TenantShardMapping{
		1001: {TenantID: 1001, ShardID: "shard1", Status: models.ShardActive},
		2002: {TenantID: 2002, ShardID: "shard1", Status: models.ShardDisabled},
	}}
	cache := lookupcache.NewLocal(lookupcache.LocalConfig{MaxSize: 10})
	reg, err := registry.New([]models.ShardDescriptor{{ID: "shard1", Latest: true}}, "")
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return lookupservice.New(store, cache, reg, nil)
}

func TestShardSelectorInstallsContextOnValidTenant(t *testing.T) {
	var installedShard string
	handler := ShardSelector(ShardSelectorConfig{Lookup: testLookup(t)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := tenantctx.FromContext(r.Context())
		installedShard = info.ShardID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set(accountIDHeader, "1001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if installedShard != "shard1" {
		t.Fatalf("expected shard1 installed, got %q", installedShard)
	}
}

func TestShardSelectorNoHeaderProceedsGlobalOnly(t *testing.T) {
	called := false
	handler := ShardSelector(ShardSelectorConfig{Lookup: testLookup(t)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		info := tenantctx.FromContext(r.Context())
		if info.HasTenant {
			t.Fatal("expected no tenant in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to be called with 200, got called=%v code=%d", called, rec.Code)
	}
}

func TestShardSelectorMalformedHeaderReturns400(t *testing.T) {
	handler := ShardSelector(ShardSelectorConfig{Lookup: testLookup(t)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called on malformed header")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set(accountIDHeader, "not-a-number")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestShardSelectorUnknownTenantReturns404(t *testing.T) {
	handler := ShardSelector(ShardSelectorConfig{Lookup: testLookup(t)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for unknown tenant")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set(accountIDHeader, "9999")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestShardSelectorDisabledTenantReturns404(t *testing.T) {
	handler := ShardSelector(ShardSelectorConfig{Lookup: testLookup(t)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for a disabled tenant")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set(accountIDHeader, "2002")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for disabled tenant, got %d", rec.Code)
	}
}

func TestShardSelectorExcludedPathBypasses(t *testing.T) {
	called := false
	handler := ShardSelector(ShardSelectorConfig{
		Lookup:           testLookup(t),
		ExcludedPrefixes: []string{"/health"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(accountIDHeader, "not-a-number") // would 400 if not excluded
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected excluded path to bypass filter, called=%v code=%d", called, rec.Code)
	}
}

func TestTenantValidatorRejectsMismatch(t *testing.T) {
	handler := TenantValidator(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called on mismatch")
	}))

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", false))
	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil).WithContext(ctx)
	req.Header.Set(accountIDHeader, "2002")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on mismatch, got %d", rec.Code)
	}
}

func TestTenantValidatorAllowsMatch(t *testing.T) {
	called := false
	handler := TenantValidator(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", false))
	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil).WithContext(ctx)
	req.Header.Set(accountIDHeader, "1001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected match to proceed, called=%v code=%d", called, rec.Code)
	}
}
