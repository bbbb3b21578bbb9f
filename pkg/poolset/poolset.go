// Package poolset implements ConnectionPoolSet: eager, per-endpoint
// *sql.DB pools built once at startup from a shard registry (spec.md
// §4.1/§9's "build all pools eagerly at startup" guidance). Grounded on
// the teacher's pkg/router.Router.getConnection pool construction, widened
// from lazy per-endpoint creation to an eager pass over every master and
// replica, plus a bounded-acquire semaphore feeding the PoolExhausted/
// PoolAcquireTimeout error kinds.
package poolset

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/observability"
	"github.com/sharding-system/pkg/registry"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config controls how every pool in the set is sized.
type Config struct {
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default MaxOpenConns / 2
	ConnMaxLifetime time.Duration // default 30m
	ConnMaxIdleTime time.Duration // default 5m
	AcquireTimeout  time.Duration // default 2s; bounds Acquire's wait for a free slot
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns / 2
		if c.MaxIdleConns < 1 {
			c.MaxIdleConns = 1
		}
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
}

type pool struct {
	db        *sql.DB
	sem       chan struct{} // bounds concurrent acquires, independent of SetMaxOpenConns
	healthyMu sync.RWMutex
	healthy   bool
}

// PoolSet is the ConnectionPoolSet: every configured endpoint, master and
// replica alike, has exactly one pool, created once and never rebuilt.
type PoolSet struct {
	pools  map[string]*pool // keyed by Endpoint.ID
	cfg    Config
	logger *zap.Logger
}

// New opens one pool per endpoint across every shard in reg. A master that
// fails to ping is a startup error; a replica that fails to ping is logged
// and marked unhealthy but does not block startup, since the router falls
// back to the master for read traffic (spec.md §4.6).
func New(ctx context.Context, reg *registry.Registry, cfg Config, logger *zap.Logger) (*PoolSet, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	ps := &PoolSet{pools: make(map[string]*pool), cfg: cfg, logger: logger}

	for _, shard := range reg.ListShards() {
		if err := ps.openEndpoint(ctx, shard.Master, true); err != nil {
			ps.Close()
			return nil, fmt.Errorf("poolset: shard %s master: %w", shard.ID, err)
		}
		for _, replica := range shard.Replicas {
			if err := ps.openEndpoint(ctx, replica, false); err != nil {
				ps.logger.Warn("poolset: replica unreachable at startup, marked unhealthy",
					zap.String("endpoint_id", replica.ID), zap.Error(err))
			}
		}
	}

	return ps, nil
}

// OpenGlobal adds the non-sharded global database endpoint to the set,
// using the same sizing and eager-ping rules as a shard master. Called
// once at startup alongside New, since the global endpoint lives outside
// the shard registry New iterates.
func (ps *PoolSet) OpenGlobal(ctx context.Context, ep models.Endpoint) error {
	return ps.openEndpoint(ctx, ep, true)
}

func (ps *PoolSet) openEndpoint(ctx context.Context, ep models.Endpoint, required bool) error {
	db, err := sql.Open(ep.Driver, ep.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", ep.ID, err)
	}

	db.SetMaxOpenConns(ps.cfg.MaxOpenConns)
	db.SetMaxIdleConns(ps.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(ps.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(ps.cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthy := true
	if err := db.PingContext(pingCtx); err != nil {
		if required {
			db.Close()
			return fmt.Errorf("ping %s: %w", ep.ID, err)
		}
		ps.logger.Warn("poolset: replica unreachable at startup, marked unhealthy",
			zap.String("endpoint_id", ep.ID), zap.Error(err))
		healthy = false
	}

	ps.pools[ep.ID] = &pool{
		db:      db,
		sem:     make(chan struct{}, ps.cfg.MaxOpenConns),
		healthy: healthy,
	}
	return nil
}

// Get returns the *sql.DB for an endpoint ID.
func (ps *PoolSet) Get(endpointID string) (*sql.DB, bool) {
	p, ok := ps.pools[endpointID]
	if !ok {
		return nil, false
	}
	return p.db, true
}

// IsHealthy reports whether pkg/health last marked endpointID reachable.
// Before the first probe, an endpoint reports the outcome of its startup
// ping (healthy unless a replica failed it); an unknown endpointID reports
// false.
func (ps *PoolSet) IsHealthy(endpointID string) bool {
	p, ok := ps.pools[endpointID]
	if !ok {
		return false
	}
	p.healthyMu.RLock()
	defer p.healthyMu.RUnlock()
	return p.healthy
}

// SetHealthy records the outcome of a health probe for endpointID.
func (ps *PoolSet) SetHealthy(endpointID string, healthy bool) {
	p, ok := ps.pools[endpointID]
	if !ok {
		return
	}
	p.healthyMu.Lock()
	p.healthy = healthy
	p.healthyMu.Unlock()
}

// Ping probes endpointID's underlying *sql.DB directly, independent of the
// healthy flag IsHealthy/SetHealthy track. pkg/health uses this to decide
// whether to flip that flag in the first place.
func (ps *PoolSet) Ping(ctx context.Context, endpointID string, timeout time.Duration) error {
	p, ok := ps.pools[endpointID]
	if !ok {
		return fmt.Errorf("poolset: no pool configured for endpoint %q", endpointID)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.db.PingContext(pingCtx)
}

// Acquire reserves a slot in endpointID's pool, returning a release
// function. It returns PoolAcquireTimeout if no slot frees up within the
// configured AcquireTimeout, and PoolExhausted if the pool is unknown.
func (ps *PoolSet) Acquire(ctx context.Context, endpointID string) (*sql.DB, func(), error) {
	p, ok := ps.pools[endpointID]
	if !ok {
		return nil, nil, dberrors.New(dberrors.KindPoolExhausted,
			fmt.Sprintf("no pool configured for endpoint %q", endpointID))
	}

	timer := time.NewTimer(ps.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		return p.db, func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, nil, dberrors.Wrap(dberrors.KindDeadline, "acquire canceled", ctx.Err())
	case <-timer.C:
		observability.PoolExhaustionTotal.WithLabelValues(endpointID).Inc()
		return nil, nil, dberrors.New(dberrors.KindPoolAcquireTimeout,
			fmt.Sprintf("timed out acquiring a connection slot for endpoint %q", endpointID))
	}
}

// Close closes every pool in the set.
func (ps *PoolSet) Close() error {
	var firstErr error
	for id, p := range ps.pools {
		if p.db == nil {
			continue
		}
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("poolset: close %s: %w", id, err)
		}
	}
	return firstErr
}
