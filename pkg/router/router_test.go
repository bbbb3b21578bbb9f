package router

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/tenantctx"
)

type fakePools struct {
	mu        sync.Mutex
	dbs       map[string]*sql.DB
	unhealthy map[string]bool
}

func newFakePools(endpointIDs ...string) *fakePools {
	dbs := make(map[string]*sql.DB, len(endpointIDs))
	for _, id := range endpointIDs {
		dbs[id] = &sql.DB{} // never dialed; router never calls methods on it in these tests
	}
	return &fakePools{dbs: dbs, unhealthy: make(map[string]bool)}
}

func (f *fakePools) Get(endpointID string) (*sql.DB, bool) {
	db, ok := f.dbs[endpointID]
	return db, ok
}

func (f *fakePools) IsHealthy(endpointID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unhealthy[endpointID]
}

func (f *fakePools) markUnhealthy(endpointID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unhealthy[endpointID] = true
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]models.ShardDescriptor{
		{
			ID:     "shard1",
			Master: models.Endpoint{ID: "shard1-master"},
			Replicas: []models.Endpoint{
				{ID: "shard1-replica-a"},
				{ID: "shard1-replica-b"},
			},
			Latest: true,
		},
	}, models.ReplicaFirstAvailable)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return reg
}

func TestChooseNonShardedReturnsGlobal(t *testing.T) {
	pools := newFakePools("global")
	r := New(testRegistry(t), pools, "global", nil, nil)

	_, endpointID, err := r.Choose(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpointID != "global" {
		t.Fatalf("expected global, got %s", endpointID)
	}
}

func TestChooseShardedNoTenantFails(t *testing.T) {
	pools := newFakePools("global", "shard1-master")
	r := New(testRegistry(t), pools, "global", nil, nil)

	_, _, err := r.Choose(context.Background(), true)
	if !dberrors.Is(err, dberrors.KindMissingTenantContext) {
		t.Fatalf("expected MissingTenantContext, got %v", err)
	}
}

func TestChooseShardedWriteGoesToMaster(t *testing.T) {
	pools := newFakePools("global", "shard1-master", "shard1-replica-a", "shard1-replica-b")
	r := New(testRegistry(t), pools, "global", nil, nil)

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", false))
	_, endpointID, err := r.Choose(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpointID != "shard1-master" {
		t.Fatalf("expected shard1-master, got %s", endpointID)
	}
}

func TestChooseShardedReadGoesToReplica(t *testing.T) {
	pools := newFakePools("global", "shard1-master", "shard1-replica-a", "shard1-replica-b")
	r := New(testRegistry(t), pools, "global", nil, nil)

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", true))
	_, endpointID, err := r.Choose(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpointID != "shard1-replica-a" && endpointID != "shard1-replica-b" {
		t.Fatalf("expected a replica, got %s", endpointID)
	}
}

func TestChooseReadFallsBackToMasterWhenNoHealthyReplica(t *testing.T) {
	pools := newFakePools("global", "shard1-master", "shard1-replica-a", "shard1-replica-b")
	pools.markUnhealthy("shard1-replica-a")
	pools.markUnhealthy("shard1-replica-b")

	fallbacks := 0
	r := New(testRegistry(t), pools, "global", nil, func() { fallbacks++ })

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", true))
	_, endpointID, err := r.Choose(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpointID != "shard1-master" {
		t.Fatalf("expected fallback to shard1-master, got %s", endpointID)
	}
	if fallbacks != 1 {
		t.Fatalf("expected fallback counter to fire once, got %d", fallbacks)
	}
}

func TestChooseWriteToReadOnlyShardFails(t *testing.T) {
	reg, err := registry.New([]models.ShardDescriptor{
		{
			ID:     "shard1",
			Master: models.Endpoint{ID: "shard1-master"},
			Latest: true,
			Status: models.ShardReadOnly,
		},
	}, models.ReplicaFirstAvailable)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	pools := newFakePools("global", "shard1-master")
	r := New(reg, pools, "global", nil, nil)

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", false))
	_, _, err = r.Choose(ctx, true)
	if !dberrors.Is(err, dberrors.KindShardReadOnly) {
		t.Fatalf("expected ShardReadOnly, got %v", err)
	}
}

func TestChooseReadFromReadOnlyShardSucceeds(t *testing.T) {
	reg, err := registry.New([]models.ShardDescriptor{
		{
			ID:     "shard1",
			Master: models.Endpoint{ID: "shard1-master"},
			Latest: true,
			Status: models.ShardReadOnly,
		},
	}, models.ReplicaFirstAvailable)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	pools := newFakePools("global", "shard1-master")
	r := New(reg, pools, "global", nil, nil)

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "shard1", true))
	_, endpointID, err := r.Choose(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpointID != "shard1-master" {
		t.Fatalf("expected fallback-to-master read, got %s", endpointID)
	}
}

func TestChooseUnknownShardFails(t *testing.T) {
	pools := newFakePools("global")
	r := New(testRegistry(t), pools, "global", nil, nil)

	ctx := tenantctx.WithInfo(context.Background(), tenantctx.ForTenant(1001, "does-not-exist", false))
	_, _, err := r.Choose(ctx, true)
	if !dberrors.Is(err, dberrors.KindUnknownShard) {
		t.Fatalf("expected UnknownShard, got %v", err)
	}
}

func TestChooseDeadlineExceeded(t *testing.T) {
	pools := newFakePools("global")
	r := New(testRegistry(t), pools, "global", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Choose(ctx, false)
	if !dberrors.Is(err, dberrors.KindDeadline) {
		t.Fatalf("expected Deadline, got %v", err)
	}
}
