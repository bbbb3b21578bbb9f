// Package registry holds the in-memory catalog of configured shards. It is
// built once at startup from configuration and is read-only thereafter
// (per spec.md §5's "ShardRegistry is immutable after startup"). Runtime
// health flags are not stored here: pkg/health toggles them on
// pkg/poolset.PoolSet, which pkg/router consults alongside this registry
// when selecting a replica.
package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/sharding-system/pkg/models"
)

// Registry is the read-only, in-memory shard catalog.
type Registry struct {
	shards        map[string]*models.ShardDescriptor
	latestShardID string
	policy        models.ReplicaSelectionPolicy
	counters      map[string]*uint64 // per-shard round-robin counters
}

// New builds a Registry from a fully-resolved shard list. It fails fast
// (spec.md §9, open question 3) unless exactly one shard has Latest=true.
func New(shards []models.ShardDescriptor, policy models.ReplicaSelectionPolicy) (*Registry, error) {
	if policy == "" {
		policy = models.ReplicaRoundRobin
	}

	r := &Registry{
		shards:   make(map[string]*models.ShardDescriptor, len(shards)),
		policy:   policy,
		counters: make(map[string]*uint64, len(shards)),
	}

	latestCount := 0
	for i := range shards {
		s := shards[i]
		if s.ID == "" {
			return nil, fmt.Errorf("registry: shard at index %d has no id", i)
		}
		if _, exists := r.shards[s.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate shard id %q", s.ID)
		}
		if s.Status == "" {
			s.Status = models.ShardActive
		}
		cp := s
		r.shards[s.ID] = &cp
		var n uint64
		r.counters[s.ID] = &n
		if s.Latest {
			latestCount++
			r.latestShardID = s.ID
		}
	}

	if latestCount != 1 {
		return nil, fmt.Errorf("registry: exactly one shard must have latest=true, found %d", latestCount)
	}

	return r, nil
}

// GetShard returns the descriptor for a shard ID.
func (r *Registry) GetShard(id string) (*models.ShardDescriptor, bool) {
	s, ok := r.shards[id]
	return s, ok
}

// ListShards returns all configured shards in no particular order.
func (r *Registry) ListShards() []models.ShardDescriptor {
	out := make([]models.ShardDescriptor, 0, len(r.shards))
	for _, s := range r.shards {
		out = append(out, *s)
	}
	return out
}

// LatestShardID returns the shard designated to receive newly-provisioned
// tenants.
func (r *Registry) LatestShardID() string {
	return r.latestShardID
}

// NextRoundRobinIndex returns the next index for a shard's round-robin
// replica counter, wrapping modulo n.
func (r *Registry) NextRoundRobinIndex(shardID string, n int) int {
	if n <= 0 {
		return 0
	}
	counter, ok := r.counters[shardID]
	if !ok {
		return 0
	}
	v := atomic.AddUint64(counter, 1)
	return int(v % uint64(n))
}

// Policy returns the configured replica selection policy.
func (r *Registry) Policy() models.ReplicaSelectionPolicy {
	return r.policy
}
