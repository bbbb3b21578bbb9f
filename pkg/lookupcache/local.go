package lookupcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharding-system/pkg/hashing"
	"github.com/sharding-system/pkg/models"
)

const defaultStripes = 16

// LocalConfig configures the in-process LRU backend.
type LocalConfig struct {
	MaxSize     int           // total entries across all stripes; default 10_000
	TTL         time.Duration // positive-entry TTL; default 1h
	NegativeTTL time.Duration // negative-entry TTL; 0 disables negative caching
	HashFunc    hashing.HashFunction
	Stripes     int // default 16
}

type entry struct {
	tenantID  int64
	mapping   models.TenantShardMapping
	negative  bool
	expiresAt time.Time
}

type stripe struct {
	mu      sync.Mutex
	items   map[int64]*list.Element
	order   *list.List // front = most recently used
	maxSize int
}

// Local is a bounded, TTL-based, striped-LRU cache backend. Striping by
// hash(tenant_id) spreads lock contention across independent buckets so
// concurrent lookups for unrelated tenants never serialize on one mutex.
type Local struct {
	stripes     []*stripe
	ttl         time.Duration
	negativeTTL time.Duration
	hashFunc    hashing.HashFunction
	hits        uint64
	misses      uint64
}

// NewLocal constructs a Local cache backend from cfg, filling in defaults.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10_000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Stripes <= 0 {
		cfg.Stripes = defaultStripes
	}
	if cfg.HashFunc == nil {
		cfg.HashFunc = hashing.NewHashFunction("xxhash")
	}

	perStripe := cfg.MaxSize / cfg.Stripes
	if perStripe < 1 {
		perStripe = 1
	}

	l := &Local{
		stripes:     make([]*stripe, cfg.Stripes),
		ttl:         cfg.TTL,
		negativeTTL: cfg.NegativeTTL,
		hashFunc:    cfg.HashFunc,
	}
	for i := range l.stripes {
		l.stripes[i] = &stripe{
			items:   make(map[int64]*list.Element),
			order:   list.New(),
			maxSize: perStripe,
		}
	}
	return l
}

func (l *Local) stripeFor(tenantID int64) *stripe {
	h := l.hashFunc.Hash(fmt.Sprintf("%d", tenantID))
	return l.stripes[h%uint64(len(l.stripes))]
}

func (l *Local) Get(_ context.Context, tenantID int64) (models.TenantShardMapping, bool, bool) {
	s := l.stripeFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[tenantID]
	if !ok {
		atomic.AddUint64(&l.misses, 1)
		return models.TenantShardMapping{}, false, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		s.order.Remove(el)
		delete(s.items, tenantID)
		atomic.AddUint64(&l.misses, 1)
		return models.TenantShardMapping{}, false, false
	}

	s.order.MoveToFront(el)
	atomic.AddUint64(&l.hits, 1)
	return e.mapping, true, e.negative
}

func (l *Local) Put(_ context.Context, tenantID int64, mapping models.TenantShardMapping) {
	l.set(tenantID, entry{tenantID: tenantID, mapping: mapping, expiresAt: time.Now().Add(l.ttl)})
}

func (l *Local) PutNegative(_ context.Context, tenantID int64) {
	if l.negativeTTL <= 0 {
		return
	}
	l.set(tenantID, entry{tenantID: tenantID, negative: true, expiresAt: time.Now().Add(l.negativeTTL)})
}

func (l *Local) set(tenantID int64, e entry) {
	s := l.stripeFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[tenantID]; ok {
		el.Value = &e
		s.order.MoveToFront(el)
		return
	}

	el := s.order.PushFront(&e)
	s.items[tenantID] = el

	for s.order.Len() > s.maxSize {
		back := s.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*entry)
		s.order.Remove(back)
		delete(s.items, evicted.tenantID)
	}
}

func (l *Local) Invalidate(_ context.Context, tenantID int64) {
	s := l.stripeFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[tenantID]; ok {
		s.order.Remove(el)
		delete(s.items, tenantID)
	}
}

func (l *Local) Clear(_ context.Context) {
	for _, s := range l.stripes {
		s.mu.Lock()
		s.items = make(map[int64]*list.Element)
		s.order = list.New()
		s.mu.Unlock()
	}
}

func (l *Local) Stats() Stats {
	return Stats{Hits: atomic.LoadUint64(&l.hits), Misses: atomic.LoadUint64(&l.misses)}
}
