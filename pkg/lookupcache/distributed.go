package lookupcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sharding-system/pkg/models"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DistributedConfig configures the etcd-backed out-of-process cache
// backend. Repurposed from the teacher's pkg/catalog.go etcd usage: where
// that package stored the shard catalog itself, this backend only stores
// directory lookup results, with lease-based TTL expiry.
type DistributedConfig struct {
	Endpoints   []string
	KeyPrefix   string
	TTL         time.Duration
	NegativeTTL time.Duration
	DialTimeout time.Duration // client dial timeout; default 5s
	IOTimeout   time.Duration // per-call deadline; default 100ms per spec.md §5
	Logger      *zap.Logger
	OnDegraded  func(op string) // invoked with the failing operation name whenever a backend call fails and we fall back to Absent
}

// Distributed is the etcd-backed Cache implementation.
type Distributed struct {
	client      *clientv3.Client
	prefix      string
	ttl         time.Duration
	negativeTTL time.Duration
	ioTimeout   time.Duration
	logger      *zap.Logger
	onDegraded  func(op string)
	hits        uint64
	misses      uint64
}

type wireEntry struct {
	Mapping  models.TenantShardMapping
	Negative bool
}

// NewDistributed dials the etcd cluster and returns a Distributed cache.
func NewDistributed(cfg DistributedConfig) (*Distributed, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 100 * time.Millisecond
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("lookupcache: failed to create etcd client: %w", err)
	}

	return &Distributed{
		client:      client,
		prefix:      cfg.KeyPrefix,
		ttl:         cfg.TTL,
		negativeTTL: cfg.NegativeTTL,
		ioTimeout:   cfg.IOTimeout,
		logger:      cfg.Logger,
		onDegraded:  cfg.OnDegraded,
	}, nil
}

func (d *Distributed) key(tenantID int64) string {
	return fmt.Sprintf("%s/tenant/%d", d.prefix, tenantID)
}

func (d *Distributed) degrade(op string, err error) {
	d.logger.Warn("lookupcache: distributed backend degraded, falling back to absent",
		zap.String("op", op), zap.Error(err))
	if d.onDegraded != nil {
		d.onDegraded(op)
	}
}

func (d *Distributed) Get(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, bool) {
	ioCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()

	resp, err := d.client.Get(ioCtx, d.key(tenantID))
	if err != nil {
		d.degrade("get", err)
		atomic.AddUint64(&d.misses, 1)
		return models.TenantShardMapping{}, false, false
	}
	if len(resp.Kvs) == 0 {
		atomic.AddUint64(&d.misses, 1)
		return models.TenantShardMapping{}, false, false
	}

	var we wireEntry
	if err := gob.NewDecoder(bytes.NewReader(resp.Kvs[0].Value)).Decode(&we); err != nil {
		d.degrade("decode", err)
		atomic.AddUint64(&d.misses, 1)
		return models.TenantShardMapping{}, false, false
	}

	atomic.AddUint64(&d.hits, 1)
	return we.Mapping, true, we.Negative
}

func (d *Distributed) put(ctx context.Context, tenantID int64, we wireEntry, ttl time.Duration) {
	ioCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(we); err != nil {
		d.degrade("encode", err)
		return
	}

	if ttl <= 0 {
		_, err := d.client.Put(ioCtx, d.key(tenantID), buf.String())
		if err != nil {
			d.degrade("put", err)
		}
		return
	}

	lease, err := d.client.Grant(ioCtx, int64(ttl.Seconds()))
	if err != nil {
		d.degrade("grant-lease", err)
		return
	}
	if _, err := d.client.Put(ioCtx, d.key(tenantID), buf.String(), clientv3.WithLease(lease.ID)); err != nil {
		d.degrade("put", err)
	}
}

func (d *Distributed) Put(ctx context.Context, tenantID int64, mapping models.TenantShardMapping) {
	d.put(ctx, tenantID, wireEntry{Mapping: mapping}, d.ttl)
}

func (d *Distributed) PutNegative(ctx context.Context, tenantID int64) {
	if d.negativeTTL <= 0 {
		return
	}
	d.put(ctx, tenantID, wireEntry{Negative: true}, d.negativeTTL)
}

func (d *Distributed) Invalidate(ctx context.Context, tenantID int64) {
	ioCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()
	if _, err := d.client.Delete(ioCtx, d.key(tenantID)); err != nil {
		d.degrade("delete", err)
	}
}

func (d *Distributed) Clear(ctx context.Context) {
	ioCtx, cancel := context.WithTimeout(ctx, d.ioTimeout)
	defer cancel()
	if _, err := d.client.Delete(ioCtx, d.prefix+"/tenant/", clientv3.WithPrefix()); err != nil {
		d.degrade("clear", err)
	}
}

func (d *Distributed) Stats() Stats {
	return Stats{Hits: atomic.LoadUint64(&d.hits), Misses: atomic.LoadUint64(&d.misses)}
}

// Close releases the underlying etcd client.
func (d *Distributed) Close() error {
	return d.client.Close()
}
