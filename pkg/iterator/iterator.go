// Package iterator implements TenantIterator: enumerates tenants from the
// directory and runs a caller-supplied function under each tenant's
// context, with a bounded worker pool (spec.md §4.10). Grounded on the
// worker-pool/ticker style of the teacher's pkg/failover/controller.go,
// combined with golang.org/x/sync/errgroup for the bounded fan-out itself
// (idiomatic, and already present transitively in the teacher's go.mod).
package iterator

import (
	"context"
	"fmt"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/tenantctx"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// pagingStore is the subset of *directory.Store this package depends on.
type pagingStore interface {
	IterateAll(ctx context.Context, cursor int64, limit int) (directory.IteratePage, error)
	IterateByShard(ctx context.Context, shardID string, cursor int64, limit int) (directory.IteratePage, error)
}

// Options configures one ProcessAllTenants run.
type Options struct {
	Parallelism int    // bounded worker count; default 4
	BatchSize   int    // directory page size; default 500
	ShardFilter string // restrict to one shard id; "" means all tenants
}

func (o *Options) setDefaults() {
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
}

// Iterator is the TenantIterator.
type Iterator struct {
	store  pagingStore
	logger *zap.Logger
}

// New constructs an Iterator.
func New(store *directory.Store, logger *zap.Logger) *Iterator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Iterator{store: store, logger: logger}
}

// TenantFunc is the per-tenant work a ProcessAllTenants caller supplies. It
// runs with the tenant's context already installed on ctx.
type TenantFunc func(ctx context.Context, tenantID int64) error

// ProcessAllTenants pages through the directory (optionally restricted to
// one shard) and runs fn once per tenant, installing that tenant's context
// for the duration of the call and clearing it afterward regardless of
// outcome. Per-tenant errors are collected into the returned summary; they
// never abort the run.
func (it *Iterator) ProcessAllTenants(ctx context.Context, fn TenantFunc, opts Options) (models.IterationSummary, error) {
	opts.setDefaults()

	summary := models.IterationSummary{}
	cursor := int64(0)

	for {
		page, err := it.nextPage(ctx, opts, cursor)
		if err != nil {
			return summary, fmt.Errorf("iterator: page at cursor %d: %w", cursor, err)
		}
		if len(page.Mappings) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallelism)

		type outcome struct {
			tenantID int64
			err      error
		}
		outcomes := make(chan outcome, len(page.Mappings))

		for _, mapping := range page.Mappings {
			mapping := mapping
			g.Go(func() error {
				tenantCtx := tenantctx.ForTenant(mapping.TenantID, mapping.ShardID, false)
				err := tenantctx.ExecuteInTenantContext(gctx, tenantCtx, func(ctx context.Context) error {
					return fn(ctx, mapping.TenantID)
				})
				outcomes <- outcome{tenantID: mapping.TenantID, err: err}
				return nil // never abort the group on a per-tenant failure
			})
		}

		if err := g.Wait(); err != nil {
			return summary, fmt.Errorf("iterator: worker pool error: %w", err)
		}
		close(outcomes)

		for o := range outcomes {
			if o.err != nil {
				summary.Failed = append(summary.Failed, models.TenantIterFailure{
					TenantID: o.tenantID,
					Error:    o.err.Error(),
				})
				it.logger.Warn("iterator: tenant task failed",
					zap.Int64("tenant_id", o.tenantID), zap.Error(o.err))
			} else {
				summary.Succeeded++
			}
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	return summary, nil
}

func (it *Iterator) nextPage(ctx context.Context, opts Options, cursor int64) (directory.IteratePage, error) {
	if opts.ShardFilter == "" {
		return it.store.IterateAll(ctx, cursor, opts.BatchSize)
	}
	return it.store.IterateByShard(ctx, opts.ShardFilter, cursor, opts.BatchSize)
}
