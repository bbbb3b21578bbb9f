// Package tenantctx carries the ambient, per-request tenant state that the
// rest of the router consults to decide where a query goes. It is
// implemented as a value stored on context.Context rather than a
// thread-local, so propagation across goroutines is explicit: a worker
// that wants the caller's tenant visible must be wrapped with
// ExecuteInTenantContext.
package tenantctx

import (
	"context"
)

type contextKey struct{}

var ctxKey = contextKey{}

// Info is the tenant state installed for the duration of a request.
// A zero-value Info (no TenantID) routes to the global database.
type Info struct {
	TenantID    int64
	ShardID     string
	HasTenant   bool
	ReadOnly    bool
	SelectedSrc string // resolved physical endpoint ID, recorded by WithSelectedSource; router.Choose does not set it
}

// Global returns an Info with no tenant set, routing to the global database.
func Global() Info {
	return Info{}
}

// ForTenant returns an Info scoped to a tenant and shard.
func ForTenant(tenantID int64, shardID string, readOnly bool) Info {
	return Info{TenantID: tenantID, ShardID: shardID, HasTenant: true, ReadOnly: readOnly}
}

// WithInfo returns a new context carrying info. Re-entrant: nesting
// WithInfo calls stacks LIFO, since each call simply layers a new value on
// top of the parent context without mutating it.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey, info)
}

// FromContext returns the Info installed on ctx, or the zero value
// (global, no tenant) if none was installed.
func FromContext(ctx context.Context) Info {
	info, _ := ctx.Value(ctxKey).(Info)
	return info
}

// WithSelectedSource returns a context with the resolved physical source
// recorded on the current Info. Nothing in this module calls it:
// router.Choose returns the endpoint ID to its caller and leaves the
// context unchanged, and the transaction manager and data source resolve
// the endpoint through the router on each call.
func WithSelectedSource(ctx context.Context, endpointID string) context.Context {
	info := FromContext(ctx)
	info.SelectedSrc = endpointID
	return WithInfo(ctx, info)
}

// ExecuteInTenantContext re-installs a captured Info on a context before
// invoking fn, and restores whatever was visible before fn returns. This
// is the explicit propagation primitive spec.md requires for asynchronous
// work: a worker pool task captures the caller's context.Context (which
// already carries the parent's Info, if any) via this helper rather than
// inheriting ambient state implicitly.
func ExecuteInTenantContext(ctx context.Context, info Info, fn func(context.Context) error) error {
	return fn(WithInfo(ctx, info))
}

// Clear returns a context with no tenant Info installed — equivalent to
// Global(). RequestFilters call this (or simply let the request-scoped
// context fall out of scope) on every exit path.
func Clear(ctx context.Context) context.Context {
	return WithInfo(ctx, Global())
}
