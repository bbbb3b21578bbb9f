package lookupservice

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/lookupcache"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[int64]models.TenantShardMapping
	findCalls int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]models.TenantShardMapping)}
}

func (f *fakeStore) Find(_ context.Context, tenantID int64) (models.TenantShardMapping, bool, error) {
	atomic.AddInt64(&f.findCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[tenantID]
	return m, ok, nil
}

func (f *fakeStore) Create(_ context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.TenantShardMapping{TenantID: tenantID, ShardID: shardID, Region: region, Status: models.ShardActive}
	f.rows[tenantID] = m
	return m, nil
}

func (f *fakeStore) Update(_ context.Context, tenantID int64, params directory.UpdateParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[tenantID]
	if !ok {
		return false, nil
	}
	m.ShardID = params.ShardID
	m.Region = params.Region
	m.Status = params.Status
	f.rows[tenantID] = m
	return true, nil
}

func (f *fakeStore) IterateAll(_ context.Context, cursor int64, limit int) (directory.IteratePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.TenantShardMapping
	for _, m := range f.rows {
		if m.TenantID > cursor {
			all = append(all, m)
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	next := cursor
	if len(all) > 0 {
		next = all[len(all)-1].TenantID
	}
	return directory.IteratePage{Mappings: all, NextCursor: next, HasMore: false}, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cache := lookupcache.NewLocal(lookupcache.LocalConfig{MaxSize: 100, NegativeTTL: 0})
	reg, err := registry.New([]models.ShardDescriptor{{ID: "shard1", Latest: true}}, "")
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return New(nil, cache, reg, nil), store
}

func TestFindShardByTenantIDMiss(t *testing.T) {
	svc, store := newTestService(t)
	svc.store = store
	ctx := context.Background()

	_, found, err := svc.FindShardByTenantID(ctx, 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no mapping for unknown tenant")
	}
}

func TestFindShardByTenantIDHitAfterCreate(t *testing.T) {
	svc, store := newTestService(t)
	svc.store = store
	ctx := context.Background()

	if _, err := svc.CreateMapping(ctx, 1001, "shard1", "us-east"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping, found, err := svc.FindShardByTenantID(ctx, 1001)
	if err != nil || !found {
		t.Fatalf("expected found mapping, err=%v found=%v", err, found)
	}
	if mapping.ShardID != "shard1" {
		t.Fatalf("unexpected shard: %s", mapping.ShardID)
	}
}

func TestFindShardByTenantIDConcurrentMissesCollapseToOneStoreRead(t *testing.T) {
	svc, store := newTestService(t)
	svc.store = store
	// Tenant 2002 is absent, so callers arriving after the first read
	// completes are answered by its negative entry (60s, the config
	// default) instead of issuing a second read.
	svc.cache = lookupcache.NewLocal(lookupcache.LocalConfig{MaxSize: 100, NegativeTTL: 60 * time.Second})
	ctx := context.Background()

	const concurrency = 100
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			svc.FindShardByTenantID(ctx, 2002)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&store.findCalls); got != 1 {
		t.Fatalf("expected exactly 1 directory Find call, got %d", got)
	}
}

func TestUpdateMappingNoRow(t *testing.T) {
	svc, store := newTestService(t)
	svc.store = store
	ctx := context.Background()

	ok, err := svc.UpdateMapping(ctx, 9999, directory.UpdateParams{ShardID: "shard2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no row to be updated")
	}
}

func TestWarmUpCache(t *testing.T) {
	svc, store := newTestService(t)
	svc.store = store
	ctx := context.Background()

	store.Create(ctx, 1, "shard1", "")
	store.Create(ctx, 2, "shard1", "")

	warmed, err := svc.WarmUpCache(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warmed != 2 {
		t.Fatalf("expected 2 warmed entries, got %d", warmed)
	}

	if _, present, _ := svc.cache.Get(ctx, 1); !present {
		t.Fatal("expected tenant 1 to be cached after warm up")
	}
}
