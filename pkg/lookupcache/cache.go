// Package lookupcache implements the bounded, TTL-based cache that sits in
// front of the directory store (spec.md §4.3). Two backends are provided:
// a striped in-process LRU (Local) and an etcd-backed distributed cache
// (Distributed); both satisfy the same Cache interface so
// pkg/lookupservice is agnostic to which one is configured.
package lookupcache

import (
	"context"

	"github.com/sharding-system/pkg/models"
)

// Stats reports cache hit/miss counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is the contract both backends implement.
type Cache interface {
	// Get returns the cached mapping and true on a hit (positive or
	// negative — see Negative), or the zero value and false on a miss.
	Get(ctx context.Context, tenantID int64) (mapping models.TenantShardMapping, present bool, negative bool)
	// Put writes a positive entry for tenantID.
	Put(ctx context.Context, tenantID int64, mapping models.TenantShardMapping)
	// PutNegative records that tenantID is known absent from the
	// directory, with the cache's negative TTL. No-op if negative
	// caching is disabled.
	PutNegative(ctx context.Context, tenantID int64)
	// Invalidate evicts any entry (positive or negative) for tenantID.
	Invalidate(ctx context.Context, tenantID int64)
	// Clear evicts everything.
	Clear(ctx context.Context)
	// Stats returns current hit/miss counters.
	Stats() Stats
}
