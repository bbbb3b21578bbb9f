// Package txmanager implements RoutingTransactionManager: binds a begun
// transaction to a single physical endpoint for its entire lifetime, with
// savepoint-based nesting on that same endpoint and rejection of any
// attempt to nest a transaction across endpoints (spec.md §4.9). Grounded
// on spec.md §9's own guidance ("cached transaction-manager map keyed by
// data source -> simple map + concurrent map"); the teacher has no direct
// analogue since its transactions are ad hoc per-query.
package txmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	dberrors "github.com/sharding-system/internal/errors"
)

// Router is the subset of *router.Router this manager depends on.
type Router interface {
	Choose(ctx context.Context, sharded bool) (*sql.DB, string, error)
}

// Tx is a handle returned by Begin. Commit/Rollback always act on the same
// underlying database/sql.Tx (or nested savepoint) that Begin opened.
type Tx struct {
	endpointID string
	sqlTx      *sql.Tx
	depth      int // 0 = outermost transaction; >0 = nested savepoint
	savepoint  string
	mgr        *Manager
}

// EndpointID returns the physical endpoint this transaction is bound to.
func (t *Tx) EndpointID() string { return t.endpointID }

// Commit commits the transaction, or releases the savepoint for a nested
// Tx.
func (t *Tx) Commit() error {
	if t.depth == 0 {
		return t.sqlTx.Commit()
	}
	_, err := t.sqlTx.Exec(fmt.Sprintf("RELEASE SAVEPOINT %s", t.savepoint))
	return err
}

// Rollback rolls back the transaction, or back to the savepoint for a
// nested Tx.
func (t *Tx) Rollback() error {
	if t.depth == 0 {
		return t.sqlTx.Rollback()
	}
	_, err := t.sqlTx.Exec(fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", t.savepoint))
	return err
}

// Exec runs stmt within the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.sqlTx.ExecContext(ctx, query, args...)
}

// Query runs a SELECT within the transaction.
func (t *Tx) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.sqlTx.QueryContext(ctx, query, args...)
}

type activeTx struct {
	endpointID string
	sqlTx      *sql.Tx
	depth      int32
}

// Manager is the RoutingTransactionManager. One Manager serves an entire
// process; it tracks, per goroutine-supplied key (typically a request id
// carried by the caller), the endpoint a transaction is bound to so that
// a nested Begin on a different endpoint is rejected rather than silently
// opening a second, unrelated transaction.
type Manager struct {
	router Router
	mu     sync.Mutex
	active map[string]*activeTx // keyed by caller-supplied transaction key
}

// New constructs a Manager.
func New(r Router) *Manager {
	return &Manager{router: r, active: make(map[string]*activeTx)}
}

// Begin starts a transaction for key. sharded indicates whether the
// current tenant context should resolve to a shard (true) or the global
// database (false); the router resolves the physical endpoint exactly as
// it would for a non-transactional query. A second Begin under the same
// key nests via a savepoint if it targets the same endpoint, or fails
// with CrossDataSourceTransaction if it would target a different one.
func (m *Manager) Begin(ctx context.Context, key string, sharded bool) (*Tx, error) {
	db, endpointID, err := m.router.Choose(ctx, sharded)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	existing, nested := m.active[key]
	m.mu.Unlock()

	if nested {
		if existing.endpointID != endpointID {
			return nil, dberrors.New(dberrors.KindCrossDataSourceTx,
				fmt.Sprintf("transaction %q already bound to endpoint %q, cannot nest endpoint %q",
					key, existing.endpointID, endpointID))
		}
		depth := atomic.AddInt32(&existing.depth, 1)
		savepoint := fmt.Sprintf("sp_%d", depth)
		if _, err := existing.sqlTx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", savepoint)); err != nil {
			atomic.AddInt32(&existing.depth, -1)
			return nil, fmt.Errorf("txmanager: create savepoint: %w", err)
		}
		return &Tx{endpointID: endpointID, sqlTx: existing.sqlTx, depth: int(depth), savepoint: savepoint, mgr: m}, nil
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("txmanager: begin on %s: %w", endpointID, err)
	}

	at := &activeTx{endpointID: endpointID, sqlTx: sqlTx}
	m.mu.Lock()
	m.active[key] = at
	m.mu.Unlock()

	return &Tx{endpointID: endpointID, sqlTx: sqlTx, mgr: m}, nil
}

// End clears the per-call reference for key once the outermost Tx has
// committed or rolled back. Callers must invoke End after the outermost
// Commit/Rollback completes; nested savepoint releases do not call it.
func (m *Manager) End(key string) {
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}
