// Package router implements ConnectionRouter: given the current tenant
// context and whether the target table is sharded, it resolves the
// physical endpoint a request's SQL should run against (spec.md §4.6).
// Grounded on the teacher's pkg/router.Router — kept the logger fields and
// the overall "resolve, then fetch a pool" shape, replaced consistent-hash
// catalog lookup with registry+context based selection, and added the
// read-only replica fallback and health-aware selection the teacher's
// version never had.
package router

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/poolset"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/tenantctx"

	"go.uber.org/zap"
)

// Pools is the subset of *poolset.PoolSet the router depends on.
type Pools interface {
	Get(endpointID string) (*sql.DB, bool)
	IsHealthy(endpointID string) bool
}

// Router is the ConnectionRouter.
type Router struct {
	registry         *registry.Registry
	pools            Pools
	globalEndpointID string
	logger           *zap.Logger
	onReplicaFallback func()
}

var _ Pools = (*poolset.PoolSet)(nil)

// New constructs a Router. onReplicaFallback, if non-nil, is invoked every
// time a read-only request falls back to a shard's master because no
// replica is healthy (spec.md §4.1's "warning counter incremented").
func New(reg *registry.Registry, pools Pools, globalEndpointID string, logger *zap.Logger, onReplicaFallback func()) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:          reg,
		pools:             pools,
		globalEndpointID:  globalEndpointID,
		logger:            logger,
		onReplicaFallback: onReplicaFallback,
	}
}

// Choose resolves the physical endpoint per spec.md §4.6's decision table
// and returns its pool handle plus the endpoint id actually selected.
func (r *Router) Choose(ctx context.Context, sharded bool) (*sql.DB, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", dberrors.Wrap(dberrors.KindDeadline, "context deadline elapsed before routing", err)
	}

	if !sharded {
		db, ok := r.pools.Get(r.globalEndpointID)
		if !ok {
			return nil, "", dberrors.New(dberrors.KindUnknownShard, "global database pool is not configured")
		}
		return db, r.globalEndpointID, nil
	}

	info := tenantctx.FromContext(ctx)
	if !info.HasTenant {
		return nil, "", dberrors.New(dberrors.KindMissingTenantContext,
			"sharded access attempted with no tenant installed in context")
	}

	shard, ok := r.registry.GetShard(info.ShardID)
	if !ok {
		return nil, "", dberrors.New(dberrors.KindUnknownShard,
			fmt.Sprintf("tenant context refers to shard %q which is not in the registry", info.ShardID))
	}

	if !info.ReadOnly {
		if shard.Status == models.ShardReadOnly {
			return nil, "", dberrors.New(dberrors.KindShardReadOnly,
				fmt.Sprintf("shard %q is READ_ONLY, write denied", shard.ID))
		}
		db, ok := r.pools.Get(shard.Master.ID)
		if !ok {
			return nil, "", dberrors.New(dberrors.KindUnknownShard, "shard master pool is not configured")
		}
		return db, shard.Master.ID, nil
	}

	endpoint := r.selectReplica(shard)
	db, ok := r.pools.Get(endpoint.ID)
	if !ok {
		return nil, "", dberrors.New(dberrors.KindUnknownShard, "selected endpoint pool is not configured")
	}
	return db, endpoint.ID, nil
}

// selectReplica applies the configured replica-selection policy to the
// shard's healthy replicas, falling back to the master if none are
// healthy.
func (r *Router) selectReplica(shard *models.ShardDescriptor) models.Endpoint {
	healthy := make([]models.Endpoint, 0, len(shard.Replicas))
	for _, ep := range shard.Replicas {
		if r.pools.IsHealthy(ep.ID) {
			healthy = append(healthy, ep)
		}
	}

	if len(healthy) == 0 {
		r.logger.Warn("router: no healthy replica, falling back to master",
			zap.String("shard_id", shard.ID))
		if r.onReplicaFallback != nil {
			r.onReplicaFallback()
		}
		return shard.Master
	}

	switch r.registry.Policy() {
	case models.ReplicaRandom:
		return healthy[rand.Intn(len(healthy))]
	case models.ReplicaFirstAvailable:
		return healthy[0]
	default: // ROUND_ROBIN
		idx := r.registry.NextRoundRobinIndex(shard.ID, len(healthy))
		return healthy[idx]
	}
}
