// Package health implements the replica/master probing that feeds
// ConnectionPoolSet's unhealthy-exclusion window (spec.md §4.1: a replica
// marked unhealthy is excluded from selection until it probes healthy
// again). Grounded on the teacher's pkg/health/health.go Controller,
// retargeted from the teacher's catalog.Catalog/models.Shard shape onto
// this spec's pkg/registry.Registry + pkg/poolset.PoolSet, since shard
// topology here is config-derived rather than catalog-stored.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/registry"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pools is the subset of *poolset.PoolSet the controller depends on.
type Pools interface {
	IsHealthy(endpointID string) bool
	SetHealthy(endpointID string, healthy bool)
	Ping(ctx context.Context, endpointID string, timeout time.Duration) error
}

// Config controls the controller's probing cadence.
type Config struct {
	CheckInterval      time.Duration // default 10s
	ProbeTimeout       time.Duration // default 2s
	UnhealthyThreshold int           // default 3 consecutive failures before excluding an endpoint
}

func (c *Config) setDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = 3
	}
}

// Controller periodically probes every shard's master and replicas and
// records the outcome in Pools, so pkg/router's replica selection always
// sees a recent view of which endpoints are reachable.
type Controller struct {
	registry *registry.Registry
	pools    Pools
	logger   *zap.Logger

	checkInterval      time.Duration
	probeTimeout       time.Duration
	unhealthyThreshold int

	mu       sync.RWMutex
	status   map[string]models.ShardHealth
	failures map[string]int
}

// NewController constructs a Controller over reg's shard topology and
// pools' pings.
func NewController(reg *registry.Registry, pools Pools, logger *zap.Logger, cfg Config) *Controller {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		registry:           reg,
		pools:              pools,
		logger:             logger,
		checkInterval:      cfg.CheckInterval,
		probeTimeout:       cfg.ProbeTimeout,
		unhealthyThreshold: cfg.UnhealthyThreshold,
		status:             make(map[string]models.ShardHealth),
		failures:           make(map[string]int),
	}
}

// Start schedules the probe loop on a cron entry firing every
// checkInterval and blocks until ctx is canceled. It probes once
// immediately so Snapshot has data before the first scheduled run.
func (c *Controller) Start(ctx context.Context) {
	c.checkAllShards(ctx)

	sched := cron.New()
	_, err := sched.AddFunc(fmt.Sprintf("@every %s", c.checkInterval), func() {
		c.checkAllShards(ctx)
	})
	if err != nil {
		c.logger.Error("health: failed to schedule probe loop, falling back to a plain ticker", zap.Error(err))
		c.runTicker(ctx)
		return
	}

	sched.Start()
	defer sched.Stop()

	<-ctx.Done()
}

// runTicker is the fallback loop used only if the cron schedule string
// fails to parse (checkInterval came from an untrusted Config value).
func (c *Controller) runTicker(ctx context.Context) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAllShards(ctx)
		}
	}
}

func (c *Controller) checkAllShards(ctx context.Context) {
	for _, shard := range c.registry.ListShards() {
		c.checkShard(ctx, &shard)
	}
}

func (c *Controller) checkShard(ctx context.Context, shard *models.ShardDescriptor) {
	health := models.ShardHealth{ShardID: shard.ID, LastCheck: time.Now()}

	health.MasterUp = c.probe(ctx, shard.Master.ID)
	if !health.MasterUp {
		c.logger.Warn("health: shard master unreachable",
			zap.String("shard_id", shard.ID), zap.String("endpoint_id", shard.Master.ID))
	}

	for _, replica := range shard.Replicas {
		if c.probe(ctx, replica.ID) {
			health.ReplicasUp = append(health.ReplicasUp, replica.ID)
		} else {
			health.ReplicasDown = append(health.ReplicasDown, replica.ID)
		}
	}

	c.mu.Lock()
	c.status[shard.ID] = health
	c.mu.Unlock()
}

// probe pings endpointID and only flips Pools' healthy flag after
// unhealthyThreshold consecutive failures, so a single transient blip
// doesn't exclude a replica that recovers on the next tick.
func (c *Controller) probe(ctx context.Context, endpointID string) bool {
	err := c.pools.Ping(ctx, endpointID, c.probeTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.failures[endpointID] = 0
		c.pools.SetHealthy(endpointID, true)
		return true
	}

	c.failures[endpointID]++
	if c.failures[endpointID] >= c.unhealthyThreshold {
		c.pools.SetHealthy(endpointID, false)
		return false
	}
	return c.pools.IsHealthy(endpointID)
}

// Snapshot returns the most recent health status for every shard.
func (c *Controller) Snapshot() map[string]models.ShardHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.ShardHealth, len(c.status))
	for k, v := range c.status {
		out[k] = v
	}
	return out
}

// ShardHealth returns the most recent health status for one shard.
func (c *Controller) ShardHealth(shardID string) (models.ShardHealth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.status[shardID]
	return h, ok
}
