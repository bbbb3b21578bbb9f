// Package lookupservice implements ShardLookupService: the cache-then-store
// read path for tenant -> shard resolution (spec.md §4.4), with a
// singleflight guarantee that concurrent misses for the same tenant collapse
// into a single DirectoryStore read (spec.md §8).
package lookupservice

import (
	"context"
	"fmt"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/lookupcache"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of *directory.Store this service depends on,
// declared at the point of use so callers (including tests) can
// substitute a fake.
type Store interface {
	Find(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, error)
	Create(ctx context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error)
	Update(ctx context.Context, tenantID int64, params directory.UpdateParams) (bool, error)
	IterateAll(ctx context.Context, cursor int64, limit int) (directory.IteratePage, error)
}

// Service is the ShardLookupService.
type Service struct {
	store    Store
	cache    lookupcache.Cache
	registry *registry.Registry
	group    singleflight.Group
	logger   *zap.Logger
}

// New constructs a Service. logger may be nil, in which case a no-op logger
// is used.
func New(store Store, cache lookupcache.Cache, reg *registry.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, registry: reg, logger: logger}
}

// FindShardByTenantID resolves tenantID to its shard mapping, consulting the
// cache first and falling through to the directory store on a miss. Only one
// directory read is ever in flight per tenant at a time, regardless of how
// many callers race on a cold cache entry.
func (s *Service) FindShardByTenantID(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, error) {
	if mapping, present, negative := s.cache.Get(ctx, tenantID); present {
		if negative {
			return models.TenantShardMapping{}, false, nil
		}
		return mapping, true, nil
	}

	key := fmt.Sprintf("%d", tenantID)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check: another caller may have populated the cache while we
		// waited to acquire the singleflight key.
		if mapping, present, negative := s.cache.Get(ctx, tenantID); present {
			if negative {
				return result{found: false}, nil
			}
			return result{mapping: mapping, found: true}, nil
		}

		mapping, ok, err := s.store.Find(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.cache.PutNegative(ctx, tenantID)
			return result{found: false}, nil
		}
		s.cache.Put(ctx, tenantID, mapping)
		return result{mapping: mapping, found: true}, nil
	})
	if err != nil {
		return models.TenantShardMapping{}, false, err
	}

	r := v.(result)
	return r.mapping, r.found, nil
}

type result struct {
	mapping models.TenantShardMapping
	found   bool
}

// CreateMapping provisions tenantID onto shardID (or the registry's latest
// shard, if shardID is empty) and writes through to the cache.
func (s *Service) CreateMapping(ctx context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error) {
	if shardID == "" {
		shardID = s.registry.LatestShardID()
	}

	mapping, err := s.store.Create(ctx, tenantID, shardID, region)
	if err != nil {
		return models.TenantShardMapping{}, err
	}

	s.cache.Invalidate(ctx, tenantID) // clears any stale negative entry
	s.cache.Put(ctx, tenantID, mapping)
	return mapping, nil
}

// UpdateMapping moves tenantID per params. The cache entry is invalidated
// rather than refreshed in place: the next read repopulates it from the
// directory store, keeping this path simple and always consistent.
func (s *Service) UpdateMapping(ctx context.Context, tenantID int64, params directory.UpdateParams) (bool, error) {
	ok, err := s.store.Update(ctx, tenantID, params)
	if err != nil {
		return false, err
	}
	if ok {
		s.cache.Invalidate(ctx, tenantID)
	}
	return ok, nil
}

// GetLatestShardID returns the shard new tenants are provisioned onto.
func (s *Service) GetLatestShardID() string {
	return s.registry.LatestShardID()
}

// WarmUpCache pages through every directory row and populates the cache,
// for use at startup or after a cache backend failover.
func (s *Service) WarmUpCache(ctx context.Context, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	warmed := 0
	cursor := int64(0)
	for {
		page, err := s.store.IterateAll(ctx, cursor, pageSize)
		if err != nil {
			return warmed, fmt.Errorf("lookupservice: warm up cache: %w", err)
		}
		for _, m := range page.Mappings {
			s.cache.Put(ctx, m.TenantID, m)
			warmed++
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	s.logger.Info("lookupservice: cache warm up complete", zap.Int("tenants_warmed", warmed))
	return warmed, nil
}
