package lookupcache

import (
	"context"

	"github.com/sharding-system/pkg/models"
)

// Noop is the Cache backend used when cache.type is NONE: every lookup
// misses, so ShardLookupService always reads through to the directory
// store. Exists so main wiring doesn't need a special case for "no cache"
// beyond picking this implementation.
type Noop struct{}

func (Noop) Get(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, bool) {
	return models.TenantShardMapping{}, false, false
}

func (Noop) Put(ctx context.Context, tenantID int64, mapping models.TenantShardMapping) {}

func (Noop) PutNegative(ctx context.Context, tenantID int64) {}

func (Noop) Invalidate(ctx context.Context, tenantID int64) {}

func (Noop) Clear(ctx context.Context) {}

func (Noop) Stats() Stats { return Stats{} }

var _ Cache = Noop{}
